package model

// EmailRecord is the structured form of one message.
type EmailRecord struct {
	ID          string   `json:"id"`
	BatchID     string   `json:"batch_id"`
	ProjectID   *string  `json:"project_id"`
	CaseID      *string  `json:"case_id"`
	MessageID   *string  `json:"message_id"`
	InReplyTo   *string  `json:"in_reply_to"`
	References  *string  `json:"references_header"`
	Subject     *string  `json:"subject"`
	From        *string  `json:"from_header"`
	To          *string  `json:"to_header"`
	Cc          *string  `json:"cc_header"`
	Bcc         *string  `json:"bcc_header"`
	Date        *string  `json:"date_header"`
	DateEpoch   *int64   `json:"date_epoch"`
	SenderEmail *string  `json:"sender_email"`
	SenderName  *string  `json:"sender_name"`
	BodyText    *string  `json:"body_text"`
	BodyHTML    *string  `json:"body_html"`
	Received    []string `json:"received"`
	SourcePath  string   `json:"source_path"`
	SourceIndex int      `json:"source_index"`
}

// AttachmentRecord describes one attachment of an EmailRecord.
type AttachmentRecord struct {
	ID             string  `json:"id"`
	EmailMessageID string  `json:"email_message_id"`
	BatchID        string  `json:"batch_id"`
	ProjectID      *string `json:"project_id"`
	CaseID         *string `json:"case_id"`
	Filename       string  `json:"filename"`
	ContentType    *string `json:"content_type"`
	FileSizeBytes  int64   `json:"file_size_bytes"`
	StorageBucket  string  `json:"storage_bucket"`
	StorageKey     string  `json:"storage_key"`
	AttachmentHash string  `json:"attachment_hash"`
	IsInline       bool    `json:"is_inline"`
	ContentID      *string `json:"content_id"`
	SourcePath     string  `json:"source_path"`
}

// Attachment pairs a record with the decoded content it describes.
type Attachment struct {
	Record AttachmentRecord
	Data   []byte
}

// Extraction is one assembled message.
type Extraction struct {
	Email       EmailRecord
	Attachments []Attachment
}

// Optional returns a pointer to s, or nil when s is empty.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Value dereferences an optional string, yielding "" for nil.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
