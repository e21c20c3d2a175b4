// Package attachment classifies MIME leaves as attachments and resolves safe
// filenames for them.
package attachment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/dhcgn/mailstore-extract/mimetree"
)

const (
	// MaxFilenameLen caps sanitised filenames, counted in characters.
	MaxFilenameLen = 200
	// FallbackFilename replaces names that sanitise to nothing.
	FallbackFilename = "attachment.bin"
)

// Part is one classified attachment with its decoded content.
type Part struct {
	// Index is the position among classified parts, including skipped ones.
	Index       int
	Filename    string
	ContentType string
	ContentID   string
	Inline      bool
	Hash        string
	Data        []byte
}

// Result holds the attachments of a message.
type Result struct {
	Parts []Part
	// Skipped counts classified parts whose content was unreadable or empty.
	Skipped int
}

// IsAttachment reports whether a leaf part should be treated as an attachment.
func IsAttachment(n *mimetree.Node) bool {
	if strings.HasPrefix(n.MimeType, "text/plain") || strings.HasPrefix(n.MimeType, "text/html") {
		return false
	}

	disp := disposition(n)
	_, hasName := Filename(n)
	switch {
	case strings.HasPrefix(disp, "attachment"):
		return true
	case strings.HasPrefix(disp, "inline"):
		return hasName
	default:
		return hasName
	}
}

// Classify returns the attachment leaves under root in depth-first order.
func Classify(root *mimetree.Node) []*mimetree.Node {
	var out []*mimetree.Node
	for _, leaf := range root.Leaves() {
		if IsAttachment(leaf) {
			out = append(out, leaf)
		}
	}
	return out
}

// Filename resolves the declared filename of a part: the Content-Disposition
// filename parameter, then the Content-Type name parameter, then their
// RFC 2231 extended forms.
func Filename(n *mimetree.Node) (string, bool) {
	if v, ok := n.Header.Param("Content-Disposition", "filename"); ok {
		return v, true
	}
	if v, ok := n.Header.Param("Content-Type", "name"); ok {
		return v, true
	}
	if v := extendedParam(n.Header.Get("Content-Disposition"), "filename"); v != "" {
		return v, true
	}
	if v := extendedParam(n.Header.Get("Content-Type"), "name"); v != "" {
		return v, true
	}
	return "", false
}

// extendedParam decodes RFC 2231 continuations and charsets, which the plain
// parameter split leaves unresolved.
func extendedParam(value, key string) string {
	if !strings.Contains(value, key+"*") {
		return ""
	}
	_, params, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params[key])
}

// SanitizeFilename makes name safe to use as a path component.
func SanitizeFilename(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}

	name = strings.NewReplacer(`\`, "_", "/", "_", "\x00", "", "\r", "", "\n", "").Replace(name)
	if utf8.RuneCountInString(name) > MaxFilenameLen {
		runes := []rune(name)
		name = string(runes[:MaxFilenameLen])
	}
	return name
}

// Extract classifies the leaves under root and decodes every attachment.
func Extract(root *mimetree.Node) Result {
	var res Result
	for idx, n := range Classify(root) {
		data, err := n.Raw()
		if err != nil || len(data) == 0 {
			res.Skipped++
			continue
		}

		sum := sha256.Sum256(data)

		name, ok := Filename(n)
		if !ok {
			name = fmt.Sprintf("attachment-%03d.bin", idx)
		}

		contentID, hasContentID := n.Header.First("Content-ID")
		res.Parts = append(res.Parts, Part{
			Index:       idx,
			Filename:    SanitizeFilename(name, FallbackFilename),
			ContentType: n.MimeType,
			ContentID:   contentID,
			Inline:      strings.HasPrefix(disposition(n), "inline") || hasContentID,
			Hash:        hex.EncodeToString(sum[:]),
			Data:        data,
		})
	}
	return res
}

func disposition(n *mimetree.Node) string {
	v, _ := n.Header.First("Content-Disposition")
	return strings.ToLower(v)
}
