package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/emersion/go-mbox"
)

// RejectSender is the envelope sender of messages in the rejects mailbox.
const RejectSender = "MAILER-DAEMON"

// RejectWriter appends unparseable messages to an mbox file so they can be
// inspected with ordinary mail tools.
type RejectWriter struct {
	file    *os.File
	mw      *mbox.Writer
	started time.Time
	count   int
}

func NewRejectWriter(path string, started time.Time) (*RejectWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create rejects mailbox: %w", err)
	}
	return &RejectWriter{file: file, mw: mbox.NewWriter(file), started: started}, nil
}

// Write stores data prefixed with a header naming its origin.
func (w *RejectWriter) Write(sourcePath string, index int, reason error, data []byte) error {
	msg, err := w.mw.CreateMessage(RejectSender, w.started)
	if err != nil {
		return fmt.Errorf("create reject message: %w", err)
	}
	header := fmt.Sprintf("X-Mailstore-Source: %s; index=%d\r\n", sourcePath, index)
	if reason != nil {
		header += fmt.Sprintf("X-Mailstore-Reject-Reason: %s\r\n", oneLine(reason.Error()))
	}
	if _, err := io.WriteString(msg, header); err != nil {
		return fmt.Errorf("write reject header: %w", err)
	}
	if _, err := msg.Write(data); err != nil {
		return fmt.Errorf("write reject message: %w", err)
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		if _, err := io.WriteString(msg, "\n"); err != nil {
			return fmt.Errorf("write reject message: %w", err)
		}
	}
	w.count++
	return nil
}

func (w *RejectWriter) Count() int {
	return w.count
}

func (w *RejectWriter) Close() error {
	if err := w.mw.Close(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("finish rejects mailbox: %w", err)
	}
	return w.file.Close()
}

func oneLine(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\r' || r == '\n' {
			r = ' '
		}
		out = append(out, r)
	}
	return string(out)
}
