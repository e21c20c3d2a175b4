package imap

import (
	"context"
	"errors"
	"testing"

	imapv2 "github.com/emersion/go-imap/v2"
)

func TestBlobPath(t *testing.T) {
	tests := []struct {
		folder string
		uid    imapv2.UID
		want   string
	}{
		{"INBOX", 42, "imap/INBOX/42.eml"},
		{"", 1, "imap/INBOX/1.eml"},
		{"/Archive/2023/", 7, "imap/Archive/2023/7.eml"},
		{`Legal\Hold`, 9, "imap/Legal/Hold/9.eml"},
	}
	for _, tt := range tests {
		if got := BlobPath(tt.folder, tt.uid); got != tt.want {
			t.Errorf("BlobPath(%q, %d) = %q, want %q", tt.folder, tt.uid, got, tt.want)
		}
	}
}

func TestOptionsFolder(t *testing.T) {
	if got := (Options{}).folder(); got != "INBOX" {
		t.Errorf("folder() = %q", got)
	}
	if got := (Options{Folder: "Sent"}).folder(); got != "Sent" {
		t.Errorf("folder() = %q", got)
	}
}

func TestNewSource_Validation(t *testing.T) {
	if _, err := NewSource(context.Background(), Options{Port: 993}, nil, nil); !errors.Is(err, ErrMissingHost) {
		t.Errorf("expected ErrMissingHost, got %v", err)
	}
	if _, err := NewSource(context.Background(), Options{Host: "mail.example.com"}, nil, nil); err == nil {
		t.Error("expected error for missing port")
	}
}
