package model

// RawBlob holds the bytes of one extracted file.
type RawBlob struct {
	// RelPath is slash separated and relative to the input root.
	RelPath string
	Data    []byte
	// KnownMail marks blobs delivered by a source that only yields RFC 822
	// messages, so the mail prefix check is skipped.
	KnownMail bool
	// Seq is the ordinal of the blob within the scan.
	Seq int
}

// MessageBytes is one candidate message and its position within the blob.
type MessageBytes struct {
	Index int
	Data  []byte
}

// DroppedMessage is a message that could not be parsed.
type DroppedMessage struct {
	Index int
	Data  []byte
	Err   error
}

// FileResult is everything extracted from a single blob.
type FileResult struct {
	Seq         int
	RelPath     string
	Skipped     bool
	Extractions []Extraction
	Dropped     []DroppedMessage
	Filtered    int
	// AttachmentsSkipped counts classified parts with unreadable or empty content.
	AttachmentsSkipped int
}

// Envelope wraps a blob alongside an optional error encountered while reading it.
type Envelope struct {
	Blob RawBlob
	Err  error
}
