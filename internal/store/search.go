package store

import "strings"

// searchIndexDDL builds the external-content FTS5 index over message bodies.
// Creating it doubles as the capability probe: mattn/go-sqlite3 only ships
// FTS5 under the sqlite_fts5 build tag, and the statement fails with
// "no such module: fts5" on a default build.
const searchIndexDDL = `
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    body,
    content='messages',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts (rowid, body) VALUES (new.id, new.body);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts (messages_fts, rowid, body) VALUES ('delete', old.id, old.body);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts (messages_fts, rowid, body) VALUES ('delete', old.id, old.body);
    INSERT INTO messages_fts (rowid, body) VALUES (new.id, new.body);
END;

INSERT INTO messages_fts (messages_fts) VALUES ('rebuild');
`

// initSearchIndex creates the FTS5 index and its sync triggers when the
// driver supports them. The rebuild picks up rows written by an earlier
// process that ran without the module.
func (db *DB) initSearchIndex() error {
	_, err := db.Exec(searchIndexDDL)
	return err
}

// SearchMessages performs a full-text search on message bodies: FTS5 with
// ranked snippets when available, a LIKE scan otherwise.
func (db *DB) SearchMessages(query string, conversationID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	if db.fts {
		return db.searchFTS(query, conversationID, limit)
	}
	return db.searchLike(query, conversationID, limit)
}

func (db *DB) searchFTS(query, conversationID string, limit int) ([]SearchResult, error) {
	q := `
		SELECT m.id, m.conversation_id, m.msg_id, m.author_id, m.body,
		       m.attachments, m.from_me, m.timestamp,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if conversationID != "" {
		q += " AND m.conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	return db.scanSearchRows(q, args, "")
}

func (db *DB) searchLike(query, conversationID string, limit int) ([]SearchResult, error) {
	q := `
		SELECT m.id, m.conversation_id, m.msg_id, m.author_id, m.body,
		       m.attachments, m.from_me, m.timestamp
		FROM messages m
		WHERE m.body LIKE '%' || ? || '%'`

	args := []any{query}
	if conversationID != "" {
		q += " AND m.conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY m.timestamp DESC LIMIT ?"
	args = append(args, limit)

	return db.scanSearchRows(q, args, query)
}

// scanSearchRows runs a search query and collects results. A non-empty
// snippetTerm means the query carries no snippet column and one is built
// from the body instead.
func (db *DB) scanSearchRows(q string, args []any, snippetTerm string) ([]SearchResult, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		dest := []any{
			&r.Message.ID, &r.Message.ConversationID, &r.Message.MsgID,
			&r.Message.AuthorID, &r.Message.Body, &r.Message.Attachments,
			&r.Message.FromMe, &r.Message.Timestamp,
		}
		if snippetTerm == "" {
			dest = append(dest, &r.Snippet)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if snippetTerm != "" {
			r.Snippet = buildSnippet(r.Message.Body, snippetTerm)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// buildSnippet marks the first match in body the way the FTS5 snippet
// function does, with a window of context on either side.
func buildSnippet(body, term string) string {
	const window = 32

	idx := strings.Index(strings.ToLower(body), strings.ToLower(term))
	if idx < 0 {
		if len(body) > 2*window {
			return body[:2*window] + "..."
		}
		return body
	}

	start := idx - window
	prefix := ""
	if start > 0 {
		prefix = "..."
	} else {
		start = 0
	}
	end := idx + len(term) + window
	suffix := ""
	if end < len(body) {
		suffix = "..."
	} else {
		end = len(body)
	}

	return prefix + body[start:idx] + "<<" + body[idx:idx+len(term)] + ">>" + body[idx+len(term):end] + suffix
}
