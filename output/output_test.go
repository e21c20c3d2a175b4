package output

import (
	"bufio"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-mbox"

	"github.com/dhcgn/mailstore-extract/model"
)

func TestEscapeCSV(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{" leading space", " leading space"},
		{"a,b", `"a,b"`},
		{`say "hi"`, `"say ""hi"""`},
		{"line\nbreak", "\"line\nbreak\""},
		{"cr\rhere", "\"cr\rhere\""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := EscapeCSV(tt.in); got != tt.want {
			t.Errorf("EscapeCSV(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRowsMatchColumns(t *testing.T) {
	if got := len(EmailRow(model.EmailRecord{})); got != len(EmailColumns) {
		t.Errorf("EmailRow has %d fields, EmailColumns %d", got, len(EmailColumns))
	}
	if got := len(AttachmentRow(model.AttachmentRecord{})); got != len(AttachmentColumns) {
		t.Errorf("AttachmentRow has %d fields, AttachmentColumns %d", got, len(AttachmentColumns))
	}
}

func TestBlobKey(t *testing.T) {
	if got := BlobKey("abcdef"); got != "attachments/ab/abcdef" {
		t.Errorf("BlobKey = %q", got)
	}
}

func readGzipLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	return lines
}

func extraction(source string, index int, subject string, attData ...string) model.Extraction {
	ext := model.Extraction{Email: model.EmailRecord{
		ID:          source + "#" + subject,
		BatchID:     "b1",
		Subject:     model.Optional(subject),
		SourcePath:  source,
		SourceIndex: index,
	}}
	for i, d := range attData {
		sum := sha256.Sum256([]byte(d))
		ext.Attachments = append(ext.Attachments, model.Attachment{
			Record: model.AttachmentRecord{
				ID:             ext.Email.ID + "/att" + string(rune('0'+i)),
				EmailMessageID: ext.Email.ID,
				BatchID:        "b1",
				Filename:       "f.bin",
				FileSizeBytes:  int64(len(d)),
				AttachmentHash: hex.EncodeToString(sum[:]),
				SourcePath:     source,
			},
			Data: []byte(d),
		})
	}
	return ext
}

func TestSink_OrderedOutputAndManifest(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Dir: dir, Bucket: "bkt", Prefix: "runs/b1/", BatchID: "b1", Rejects: true, Version: "test"}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	results := []model.FileResult{
		{Seq: 2, RelPath: "c.eml", Extractions: []model.Extraction{extraction("c.eml", 0, "third", "same")}},
		{Seq: 0, RelPath: "a.eml", Extractions: []model.Extraction{extraction("a.eml", 0, "first, with comma", "same", "other")}},
		{Seq: 1, RelPath: "b.bin", Skipped: true},
		{Seq: 3, RelPath: "d.mbox", Dropped: []model.DroppedMessage{{Index: 1, Data: []byte("garbage line\n"), Err: errors.New("bad header")}}, Filtered: 2},
	}
	for _, r := range results {
		if err := s.Add(r); err != nil {
			t.Fatalf("Add(%d) error = %v", r.Seq, err)
		}
	}

	m, err := s.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	if m.EmailsTotal != 2 || m.AttachmentsTotal != 3 || m.FilesScanned != 4 || m.FilesSkipped != 1 {
		t.Errorf("manifest counts = %+v", m)
	}
	if m.MessagesDropped != 1 || m.MessagesFiltered != 2 || m.BlobsStored != 2 || m.BlobDuplicates != 1 {
		t.Errorf("manifest counts = %+v", m)
	}
	if m.EmailsCSVKey != "runs/b1/emails.csv.gz" || m.ManifestKey != "runs/b1/manifest.json" {
		t.Errorf("manifest keys = %+v", m)
	}

	for _, name := range []string{EmailsNDJSON, EmailsCSV, AttachmentsNDJSON, AttachmentsCSV} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		sum := sha256.Sum256(data)
		if m.SHA256[name] != hex.EncodeToString(sum[:]) {
			t.Errorf("sha256 of %s does not match manifest", name)
		}
	}

	emails := readGzipLines(t, filepath.Join(dir, EmailsNDJSON))
	if len(emails) != 2 {
		t.Fatalf("emails.ndjson has %d lines", len(emails))
	}
	var first model.EmailRecord
	if err := json.Unmarshal([]byte(emails[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.SourcePath != "a.eml" {
		t.Errorf("first email from %q, want scan order", first.SourcePath)
	}
	if !strings.Contains(emails[0], `"project_id":null`) {
		t.Errorf("absent optional not serialised as null: %s", emails[0])
	}

	csvLines := readGzipLines(t, filepath.Join(dir, EmailsCSV))
	if csvLines[0] != strings.Join(EmailColumns, ",") {
		t.Errorf("csv header = %q", csvLines[0])
	}
	if !strings.Contains(csvLines[1], `"first, with comma"`) {
		t.Errorf("csv row not escaped: %q", csvLines[1])
	}

	atts := readGzipLines(t, filepath.Join(dir, AttachmentsNDJSON))
	var rec model.AttachmentRecord
	if err := json.Unmarshal([]byte(atts[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.StorageBucket != "bkt" || !strings.HasPrefix(rec.StorageKey, "runs/b1/attachments/") {
		t.Errorf("storage location = %s/%s", rec.StorageBucket, rec.StorageKey)
	}
	blob, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(BlobKey(rec.AttachmentHash))))
	if err != nil || string(blob) != "same" {
		t.Errorf("blob content = %q, %v", blob, err)
	}

	manifest, err := ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if manifest.EmailsTotal != 2 || manifest.Version != "test" || manifest.SchemaVersion != SchemaVersion {
		t.Errorf("persisted manifest = %+v", manifest)
	}
}

func TestSink_Rejects(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Dir: dir, BatchID: "b1", Rejects: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = s.Add(model.FileResult{Seq: 0, RelPath: "x.mbox", Dropped: []model.DroppedMessage{
		{Index: 0, Data: []byte("not a header\n\nfirst"), Err: errors.New("malformed")},
		{Index: 2, Data: []byte("also broken"), Err: errors.New("malformed")},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Finish(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(dir, RejectsFile))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	r := mbox.NewReader(f)
	var msgs []string
	for {
		msg, err := r.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextMessage() error = %v", err)
		}
		data, err := io.ReadAll(msg)
		if err != nil {
			t.Fatal(err)
		}
		msgs = append(msgs, string(data))
	}
	if len(msgs) != 2 {
		t.Fatalf("rejects mailbox has %d messages, want 2", len(msgs))
	}
	if !strings.HasPrefix(msgs[1], "X-Mailstore-Source: x.mbox; index=2") {
		t.Errorf("reject message = %q", msgs[1])
	}
}

func TestSink_BlobReuseAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	for run := 0; run < 2; run++ {
		s, err := Open(Options{Dir: dir, BatchID: "b1"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Add(model.FileResult{Seq: 0, RelPath: "a.eml", Extractions: []model.Extraction{extraction("a.eml", 0, "s", "payload")}}); err != nil {
			t.Fatal(err)
		}
		m, err := s.Finish()
		if err != nil {
			t.Fatal(err)
		}
		wantStored := 1
		if run == 1 {
			wantStored = 0
		}
		if m.BlobsStored != wantStored {
			t.Errorf("run %d stored %d blobs, want %d", run, m.BlobsStored, wantStored)
		}
	}
}
