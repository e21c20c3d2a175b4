// Package mimetree parses a single RFC 822 message into an owned tree of MIME
// parts with lazily decoded bodies.
package mimetree

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
	"golang.org/x/text/encoding/charmap"
)

const maxDepth = 32

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoHeader     = errors.New("message has no header fields")
)

func init() {
	// Labels seen in exported mail stores that the IANA index maps poorly.
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
	charset.RegisterEncoding("cp1252", charmap.Windows1252)
	charset.RegisterEncoding("cp850", charmap.CodePage850)
}

// Node is one MIME part. Multipart parts own their children; all other parts
// are leaves carrying the undecoded body.
type Node struct {
	MimeType string
	Header   Header
	Children []*Node

	content []byte
	readErr error
}

// Parse reads raw as a message and builds its part tree. Malformed multipart
// structure is tolerated: parts read before the damage are kept.
func Parse(raw []byte) (*Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyMessage
	}

	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		if !errors.Is(err, io.EOF) || h.Len() == 0 {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	if h.Len() == 0 {
		return nil, ErrNoHeader
	}

	return build(h, br, 0), nil
}

func build(h textproto.Header, body io.Reader, depth int) *Node {
	n := &Node{Header: Header{message.Header{Header: h}}}
	mediaType, params := contentType(n.Header)
	n.MimeType = mediaType

	boundary := params["boundary"]
	if strings.HasPrefix(mediaType, "multipart/") && boundary != "" && depth < maxDepth {
		mr := textproto.NewMultipartReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			n.Children = append(n.Children, build(part.Header, part, depth+1))
		}
		return n
	}

	n.content, n.readErr = io.ReadAll(body)
	return n
}

func contentType(h Header) (string, map[string]string) {
	v := h.Get("Content-Type")
	if strings.TrimSpace(v) == "" {
		return "text/plain", nil
	}
	mediaType, params, err := mime.ParseMediaType(v)
	if err == nil || errors.Is(err, mime.ErrInvalidMediaParameter) {
		if params == nil {
			params = map[string]string{}
		}
		if _, ok := params["boundary"]; !ok {
			if b, ok := ParseParam(v, "boundary"); ok {
				params["boundary"] = b
			}
		}
		return strings.ToLower(mediaType), params
	}

	bare, _, _ := strings.Cut(v, ";")
	params = map[string]string{}
	if b, ok := ParseParam(v, "boundary"); ok {
		params["boundary"] = b
	}
	return strings.ToLower(strings.TrimSpace(bare)), params
}

// IsLeaf reports whether n has no child parts.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Leaves returns the leaf parts below n in depth-first, left-to-right order.
func (n *Node) Leaves() []*Node {
	var out []*Node
	n.Walk(func(node *Node) {
		if node.IsLeaf() {
			out = append(out, node)
		}
	})
	return out
}

// Walk calls fn for n and every descendant in pre-order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Raw returns the body with its transfer encoding removed.
func (n *Node) Raw() ([]byte, error) {
	if n.readErr != nil {
		return nil, fmt.Errorf("read part body: %w", n.readErr)
	}
	h := n.Header.Copy()
	h.Del("Content-Type")
	return n.decode(h)
}

// Text returns the body decoded to UTF-8 text.
func (n *Node) Text() (string, error) {
	if n.readErr != nil {
		return "", fmt.Errorf("read part body: %w", n.readErr)
	}
	b, err := n.decode(n.Header.Header)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (n *Node) decode(h message.Header) ([]byte, error) {
	entity, err := message.New(h, bytes.NewReader(n.content))
	if err != nil && !message.IsUnknownEncoding(err) && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("decode part: %w", err)
	}
	b, err := io.ReadAll(entity.Body)
	if err != nil {
		return nil, fmt.Errorf("decode part body: %w", err)
	}
	return b, nil
}
