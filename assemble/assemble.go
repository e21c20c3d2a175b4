// Package assemble turns a single message into an email record and its
// attachment records.
package assemble

import (
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/dhcgn/mailstore-extract/attachment"
	"github.com/dhcgn/mailstore-extract/body"
	"github.com/dhcgn/mailstore-extract/identity"
	"github.com/dhcgn/mailstore-extract/mimetree"
	"github.com/dhcgn/mailstore-extract/model"
)

// Options identify the batch the records belong to.
type Options struct {
	BatchID   string
	ProjectID string
	CaseID    string
	Body      body.Options
}

type Assembler struct {
	opts     Options
	selector *body.Selector
}

func New(opts Options) *Assembler {
	return &Assembler{
		opts:     opts,
		selector: body.NewSelector(opts.Body),
	}
}

// Assemble parses msg and builds its records. The returned skip count is the
// number of attachments that could not be decoded.
func (a *Assembler) Assemble(sourcePath string, msg model.MessageBytes) (model.Extraction, int, error) {
	root, err := mimetree.Parse(msg.Data)
	if err != nil {
		return model.Extraction{}, 0, fmt.Errorf("parse message %d of %s: %w", msg.Index, sourcePath, err)
	}

	h := root.Header
	first := func(name string) *string {
		v, ok := h.First(name)
		if !ok {
			return nil
		}
		return &v
	}

	messageID := first("Message-ID")
	emailID := identity.EmailID(a.opts.BatchID, sourcePath, model.Value(messageID), msg.Index)

	email := model.EmailRecord{
		ID:          emailID,
		BatchID:     a.opts.BatchID,
		ProjectID:   model.Optional(a.opts.ProjectID),
		CaseID:      model.Optional(a.opts.CaseID),
		MessageID:   messageID,
		InReplyTo:   first("In-Reply-To"),
		References:  first("References"),
		Subject:     first("Subject"),
		From:        first("From"),
		To:          first("To"),
		Cc:          first("Cc"),
		Bcc:         first("Bcc"),
		Date:        first("Date"),
		Received:    h.All("Received"),
		SourcePath:  sourcePath,
		SourceIndex: msg.Index,
	}

	if email.Date != nil {
		mh := mail.Header{Header: h.Header}
		if t, err := mh.Date(); err == nil && !t.IsZero() {
			epoch := t.Unix()
			email.DateEpoch = &epoch
		}
	}

	if email.From != nil {
		senderEmail, senderName := ParseSender(*email.From)
		email.SenderEmail = model.Optional(senderEmail)
		email.SenderName = model.Optional(senderName)
	}

	sel := a.selector.Select(root)
	email.BodyText = nonEmpty(sel.Text)
	email.BodyHTML = nonEmpty(sel.HTML)

	res := attachment.Extract(root)
	out := model.Extraction{Email: email}
	for _, part := range res.Parts {
		out.Attachments = append(out.Attachments, model.Attachment{
			Record: model.AttachmentRecord{
				ID:             identity.AttachmentID(a.opts.BatchID, emailID, part.Hash, part.Filename, part.Index),
				EmailMessageID: emailID,
				BatchID:        a.opts.BatchID,
				ProjectID:      model.Optional(a.opts.ProjectID),
				CaseID:         model.Optional(a.opts.CaseID),
				Filename:       part.Filename,
				ContentType:    model.Optional(part.ContentType),
				FileSizeBytes:  int64(len(part.Data)),
				AttachmentHash: part.Hash,
				IsInline:       part.Inline,
				ContentID:      model.Optional(part.ContentID),
				SourcePath:     sourcePath,
			},
			Data: part.Data,
		})
	}

	return out, res.Skipped, nil
}

// ParseSender splits a From value into address and display name. Either may
// be empty.
func ParseSender(from string) (email, name string) {
	from = strings.TrimSpace(from)
	lt := strings.Index(from, "<")
	gt := strings.Index(from, ">")
	if lt >= 0 && gt > lt {
		email = strings.TrimSpace(from[lt+1 : gt])
		name = strings.TrimSpace(from[:lt])
		name = strings.TrimSpace(strings.Trim(name, `"'`))
		return email, name
	}
	if strings.Contains(from, "@") {
		return from, ""
	}
	return "", from
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
