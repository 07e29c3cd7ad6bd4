package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/amora-chat/amora/internal/tui/client"
)

// ConversationList is the main directory view (K9s-inspired table).
type ConversationList struct {
	*tview.Table
	entries    []client.Conversation
	selectedFn func() (int, int)
}

// NewConversationList creates a new conversation list table.
func NewConversationList() *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Conversations ")

	cl := &ConversationList{Table: table}
	cl.selectedFn = table.GetSelection
	return cl
}

// Update refreshes the list with new directory entries.
func (cl *ConversationList) Update(entries []client.Conversation) {
	cl.entries = entries
	cl.Clear()

	// Header row.
	cl.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, e := range entries {
		row := i + 1
		name := e.Name
		if name == "" {
			name = e.Username
		}
		if e.UnreadCount > 0 {
			name = fmt.Sprintf("* %s (%d)", name, e.UnreadCount)
		}
		if e.Unconfirmed {
			name += " [::d](new)[-:-:-]"
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+name).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+sanitizeForTerminal(e.LastMessage)).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(e.LastActivityAt)).SetMaxWidth(12))
	}
}

// Selected returns the display id of the currently selected conversation.
func (cl *ConversationList) Selected() string {
	row, _ := cl.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.entries) {
		return cl.entries[idx].DisplayID
	}
	return ""
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
