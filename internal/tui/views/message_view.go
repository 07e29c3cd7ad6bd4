package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/amora-chat/amora/internal/tui/client"
)

// MessageView displays the open conversation's timeline.
type MessageView struct {
	*tview.TextView
	counterpart string
}

// NewMessageView creates a new message view.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetCounterpart updates the title with the counterpart's name.
func (mv *MessageView) SetCounterpart(name string) {
	mv.counterpart = name
	mv.SetTitle(fmt.Sprintf(" %s ", name))
}

// Update redraws the view from a timeline snapshot. Messages arrive
// oldest-first and are rendered as-is; typing shows a trailing indicator.
func (mv *MessageView) Update(tl *client.Timeline) {
	mv.Clear()
	if tl == nil {
		return
	}

	if tl.Loading {
		_, _ = fmt.Fprint(mv, "[::d]Loading history...[-:-:-]\n\n")
	}

	for _, m := range tl.Messages {
		sender := mv.counterpart
		if m.Origin == "self" {
			sender = "You"
		}

		marker := ""
		if m.Pending {
			marker = " [::d]…[-:-:-]"
		}

		ts := formatTimestamp(m.SentAt)
		_, _ = fmt.Fprintf(mv, "[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
			sender, ts, marker, sanitizeForTerminal(m.Text))
	}

	if tl.RemoteTyping {
		_, _ = fmt.Fprintf(mv, "[::d]%s is typing...[-:-:-]\n", mv.counterpart)
	}

	mv.ScrollToEnd()
}
