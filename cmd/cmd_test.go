package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dhcgn/mailstore-extract/filter"
)

func writeStore(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"inbox/1.eml": "From: alice@example.com\nSubject: Hello\n\nhi\n",
		"inbox/2.eml": "From: alice@example.com\nSubject: =?UTF-8?B?R3LDvMOfZQ==?=\n\nbye\n",
		"archive.mbox": "From x Mon Jan  1 00:00:00 2024\nFrom: bob@example.com\nSubject: Hello\n\nbody\n" +
			"From y Mon Jan  1 00:00:00 2024\nnot a header\n\nbody\n",
		"image.png": "\x89PNG binary data here",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestInspect(t *testing.T) {
	root := writeStore(t)

	calls := 0
	in, err := Inspect(root, nil, func(*Inspection) { calls++ })
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}

	if in.Files != 4 || in.MailFiles != 2 || in.MboxFiles != 1 || in.Skipped != 1 {
		t.Errorf("file counts = %+v", in)
	}
	if in.Messages != 3 || in.Dropped != 1 || calls != 3 {
		t.Errorf("messages = %d, dropped = %d, calls = %d", in.Messages, in.Dropped, calls)
	}
	if got := in.Headers["From"]["alice@example.com"]; got != 2 {
		t.Errorf("From count = %d, want 2", got)
	}
	if got := in.Headers["Subject"]["Hello"]; got != 2 {
		t.Errorf("Subject count = %d, want 2", got)
	}
	if got := in.Headers["Subject"]["Grüße"]; got != 1 {
		t.Errorf("decoded subject count = %d, want 1", got)
	}
}

func TestInspect_Filtered(t *testing.T) {
	root := writeStore(t)
	f, err := filter.New(filter.Options{ExcludeHeader: []string{"bob@"}, ExcludePath: []string{`\.png$`}})
	if err != nil {
		t.Fatal(err)
	}

	in, err := Inspect(root, f, nil)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if in.Files != 3 || in.Filtered != 1 || in.Messages != 2 {
		t.Errorf("counts = %+v", in)
	}
}

func TestSaveCSVReports(t *testing.T) {
	dir := t.TempDir()
	counter := map[string]map[string]int{
		"From":    {"a@x": 3, "b@x": 5},
		"Subject": {"s, with comma": 1},
	}
	if err := saveCSVReports(counter, []string{"From", "Subject"}, dir, 10); err != nil {
		t.Fatalf("saveCSVReports() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "report_from.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "Value,Count\nb@x,5\na@x,3\n"; string(data) != want {
		t.Errorf("report_from.csv = %q, want %q", data, want)
	}

	data, err = os.ReadFile(filepath.Join(dir, "report_subject.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"s, with comma",1`) {
		t.Errorf("report_subject.csv = %q", data)
	}
}

func TestNormalizeHeaderName(t *testing.T) {
	if got := normalizeHeaderName("Delivered-To"); got != "delivered_to" {
		t.Errorf("normalizeHeaderName() = %q", got)
	}
}

func TestNewLoadCommand_RequiresFlags(t *testing.T) {
	cmd := NewLoadCommand()
	cmd.SetArgs([]string{})
	cmd.SetOut(new(strings.Builder))
	cmd.SetErr(new(strings.Builder))
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected missing flag error")
	}
}
