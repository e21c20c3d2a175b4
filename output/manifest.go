package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	EmailsNDJSON      = "emails.ndjson.gz"
	EmailsCSV         = "emails.csv.gz"
	AttachmentsNDJSON = "attachments.ndjson.gz"
	AttachmentsCSV    = "attachments.csv.gz"
	ManifestFile      = "manifest.json"
	RejectsFile       = "rejects.mbox"
	BlobDir           = "attachments"
)

// Manifest summarises one extraction run.
type Manifest struct {
	BatchID      string `json:"batch_id"`
	Source       string `json:"source"`
	OutputDir    string `json:"output_dir"`
	OutputBucket string `json:"output_bucket"`
	OutputPrefix string `json:"output_prefix"`

	FilesScanned       int `json:"files_scanned"`
	FilesSkipped       int `json:"files_skipped"`
	EmailsTotal        int `json:"emails_total"`
	AttachmentsTotal   int `json:"attachments_total"`
	MessagesDropped    int `json:"messages_dropped"`
	MessagesFiltered   int `json:"messages_filtered"`
	AttachmentsSkipped int `json:"attachments_skipped"`
	BlobsStored        int `json:"blobs_stored"`
	BlobDuplicates     int `json:"blob_duplicates"`

	DurationSeconds float64 `json:"duration_s"`

	EmailsNDJSONKey      string            `json:"emails_ndjson_key"`
	EmailsCSVKey         string            `json:"emails_csv_key"`
	AttachmentsNDJSONKey string            `json:"attachments_ndjson_key"`
	AttachmentsCSVKey    string            `json:"attachments_csv_key"`
	RejectsKey           string            `json:"rejects_key,omitempty"`
	ManifestKey          string            `json:"manifest_key"`
	SHA256               map[string]string `json:"sha256"`

	SchemaVersion int    `json:"schema_version"`
	Version       string `json:"version"`
}

// ReadManifest loads manifest.json from an output directory.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

func writeManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')

	tmp := filepath.Join(dir, ManifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, ManifestFile)); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}
