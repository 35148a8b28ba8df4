package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jimmy-lgtm/pd-sms/model"
)

const noteTimeFormat = "2006-01-02 15:04"

// NoteLogger writes message log lines to the CRM. Notes have two distinct
// roles: AppendLog adds a fresh log note, ConsumeAndRewrite replaces the
// content of a note that was itself the send instruction.
type NoteLogger struct {
	crm CRM
}

func NewNoteLogger(crm CRM) *NoteLogger {
	return &NoteLogger{crm: crm}
}

// AppendLog creates a new log note against the contact (and deal, if any).
func (n *NoteLogger) AppendLog(ctx context.Context, content string, personID, dealID int64) (*model.Note, error) {
	return n.crm.CreateNote(ctx, content, personID, dealID)
}

// ConsumeAndRewrite overwrites the content of the command note after its
// instruction has been executed, turning it into the outbound log entry.
func (n *NoteLogger) ConsumeAndRewrite(ctx context.Context, noteID int64, content string) error {
	return n.crm.UpdateNote(ctx, noteID, content)
}

// InboundLogLine formats the note content for a received message.
func InboundLogLine(at time.Time, from, body string, attachments int, mediaLinks []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SMS received from %s at %s: %s", from, at.Format(noteTimeFormat), body)
	if attachments > 0 {
		fmt.Fprintf(&b, " (%d attachment", attachments)
		if attachments > 1 {
			b.WriteString("s")
		}
		b.WriteString(")")
	}
	for _, link := range mediaLinks {
		b.WriteString("\n")
		b.WriteString(link)
	}
	return b.String()
}

// OutboundLogLine formats the note content for a sent message.
func OutboundLogLine(at time.Time, to, body string) string {
	return fmt.Sprintf("SMS sent to %s at %s: %s", to, at.Format(noteTimeFormat), body)
}
