// Package segment splits raw extracted files into candidate RFC 822 messages.
package segment

import (
	"bytes"
	"sort"

	"github.com/dhcgn/mailstore-extract/model"
)

// MinBlobSize is the smallest blob considered for segmentation.
const MinBlobSize = 10

var (
	fromLine = []byte("From ")

	mailPrefixes = [][]byte{
		[]byte("From:"),
		[]byte("Return-Path:"),
		[]byte("Received:"),
		[]byte("Date:"),
		[]byte("Subject:"),
	}
)

// LooksLikeMbox reports whether buf contains an mbox "From " separator line.
func LooksLikeMbox(buf []byte) bool {
	if bytes.HasPrefix(buf, fromLine) {
		return true
	}
	return bytes.Contains(buf, []byte("\nFrom "))
}

// LooksLikeMail reports whether buf starts with a header commonly found at the
// top of an RFC 822 message.
func LooksLikeMail(buf []byte) bool {
	for _, prefix := range mailPrefixes {
		if bytes.HasPrefix(buf, prefix) {
			return true
		}
	}
	return false
}

// SplitMbox returns the messages of an mbox buffer with their separator lines
// removed. A buffer without separators is returned as a single message.
func SplitMbox(buf []byte) [][]byte {
	var starts []int
	if bytes.HasPrefix(buf, fromLine) {
		starts = append(starts, 0)
	}
	// A marker ending exactly at the end of the buffer is not a separator.
	for i := 0; i+len(fromLine)+1 < len(buf); i++ {
		if buf[i] == '\n' && bytes.HasPrefix(buf[i+1:], fromLine) {
			starts = append(starts, i+1)
		}
	}
	sort.Ints(starts)
	starts = dedup(starts)

	if len(starts) == 0 {
		return [][]byte{buf}
	}

	out := make([][]byte, 0, len(starts))
	for k, start := range starts {
		end := len(buf)
		if k+1 < len(starts) {
			end = starts[k+1]
		}
		chunk := buf[start:end]
		nl := bytes.IndexByte(chunk, '\n')
		if nl < 0 {
			continue
		}
		msg := chunk[nl+1:]
		if len(msg) == 0 {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// Segment turns a raw blob into the ordered messages it contains. Blobs that
// do not look like mail yield no messages.
func Segment(blob model.RawBlob) []model.MessageBytes {
	if len(blob.Data) < MinBlobSize {
		return nil
	}

	var chunks [][]byte
	switch {
	case LooksLikeMbox(blob.Data):
		chunks = SplitMbox(blob.Data)
	case LooksLikeMail(blob.Data) || blob.KnownMail:
		chunks = [][]byte{blob.Data}
	default:
		return nil
	}

	msgs := make([]model.MessageBytes, 0, len(chunks))
	for idx, chunk := range chunks {
		msgs = append(msgs, model.MessageBytes{Index: idx, Data: chunk})
	}
	return msgs
}

func dedup(sorted []int) []int {
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
