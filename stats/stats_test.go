package stats

import (
	"context"
	"errors"
	"testing"
)

func TestCollector_Run(t *testing.T) {
	events := make(chan Event, 16)
	boom := errors.New("boom")
	for _, typ := range []EventType{
		EventTypeScanned, EventTypeScanned, EventTypeFileSkipped,
		EventTypeMessageParsed, EventTypeMessageDropped, EventTypeEmailWritten,
		EventTypeAttachmentWritten, EventTypeBlobStored, EventTypeBlobDuplicate,
	} {
		events <- Event{Type: typ}
	}
	events <- Event{Type: EventTypeError, Err: boom}
	close(events)

	c := NewCollector()
	c.Run(context.Background(), events)

	s := c.Snapshot()
	if s.FilesScanned != 2 || s.FilesSkipped != 1 || s.MessagesParsed != 1 || s.MessagesDropped != 1 {
		t.Errorf("unexpected file/message counts: %+v", s)
	}
	if s.EmailsWritten != 1 || s.AttachmentsWritten != 1 || s.BlobsStored != 1 || s.BlobDuplicates != 1 {
		t.Errorf("unexpected sink counts: %+v", s)
	}
	if s.Errors != 1 || !errors.Is(s.LastError, boom) {
		t.Errorf("unexpected error accounting: %+v", s)
	}
}

func TestTop(t *testing.T) {
	got := Top(map[string]int{"a": 1, "b": 3, "c": 3, "d": 2}, 3)
	want := []Pair{{"b", 3}, {"c", 3}, {"d", 2}}
	if len(got) != len(want) {
		t.Fatalf("Top returned %d pairs", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Top[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
