package output

import (
	"io"
	"strconv"
	"strings"

	"github.com/dhcgn/mailstore-extract/model"
)

// SchemaVersion versions the column layout of the CSV artifacts.
const SchemaVersion = 1

var EmailColumns = []string{
	"id", "batch_id", "project_id", "case_id", "message_id", "in_reply_to",
	"references_header", "subject", "from_header", "to_header", "cc_header",
	"bcc_header", "date_header", "date_epoch", "sender_email", "sender_name",
	"body_text", "body_html", "source_path", "source_index",
}

var AttachmentColumns = []string{
	"id", "email_message_id", "batch_id", "project_id", "case_id", "filename",
	"content_type", "file_size_bytes", "storage_bucket", "storage_key",
	"attachment_hash", "is_inline", "content_id", "source_path",
}

// EscapeCSV quotes s only when it contains a comma, a double quote, CR or LF.
// Unlike encoding/csv, a leading space alone does not trigger quoting.
func EscapeCSV(s string) string {
	if !strings.ContainsAny(s, ",\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// WriteCSVRow writes fields as one comma separated line.
func WriteCSVRow(w io.Writer, fields []string) error {
	var sb strings.Builder
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(EscapeCSV(f))
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

func EmailRow(e model.EmailRecord) []string {
	epoch := ""
	if e.DateEpoch != nil {
		epoch = strconv.FormatInt(*e.DateEpoch, 10)
	}
	return []string{
		e.ID,
		e.BatchID,
		model.Value(e.ProjectID),
		model.Value(e.CaseID),
		model.Value(e.MessageID),
		model.Value(e.InReplyTo),
		model.Value(e.References),
		model.Value(e.Subject),
		model.Value(e.From),
		model.Value(e.To),
		model.Value(e.Cc),
		model.Value(e.Bcc),
		model.Value(e.Date),
		epoch,
		model.Value(e.SenderEmail),
		model.Value(e.SenderName),
		model.Value(e.BodyText),
		model.Value(e.BodyHTML),
		e.SourcePath,
		strconv.Itoa(e.SourceIndex),
	}
}

func AttachmentRow(a model.AttachmentRecord) []string {
	return []string{
		a.ID,
		a.EmailMessageID,
		a.BatchID,
		model.Value(a.ProjectID),
		model.Value(a.CaseID),
		a.Filename,
		model.Value(a.ContentType),
		strconv.FormatInt(a.FileSizeBytes, 10),
		a.StorageBucket,
		a.StorageKey,
		a.AttachmentHash,
		strconv.FormatBool(a.IsInline),
		model.Value(a.ContentID),
		a.SourcePath,
	}
}
