// Package body picks the most meaningful plain-text and HTML bodies of a
// message and repairs plain text that is little more than a security banner.
package body

import (
	"strings"

	"github.com/dhcgn/mailstore-extract/mimetree"
)

// Options holds the thresholds of the mostly-banner heuristic.
type Options struct {
	// MaxBannerAlnum is the alphanumeric length under which a text containing
	// "external" may be treated as a banner.
	MaxBannerAlnum int
	// MaxResidualAlnum is the alphanumeric length the text may keep after
	// banner filtering and still count as mostly banner.
	MaxResidualAlnum int
	// MinDerivedAlnum is the minimum length of plain text derived from HTML.
	MinDerivedAlnum int
}

func DefaultOptions() Options {
	return Options{
		MaxBannerAlnum:   220,
		MaxResidualAlnum: 40,
		MinDerivedAlnum:  20,
	}
}

// Selection holds the chosen bodies. A nil pointer means no body of that kind.
type Selection struct {
	Text *string
	HTML *string
	// PlainMostlyBanner is set when the chosen plain text was judged to be
	// mostly banner and was replaced or dropped.
	PlainMostlyBanner bool
}

type Selector struct {
	opts Options
}

func NewSelector(opts Options) *Selector {
	def := DefaultOptions()
	if opts.MaxBannerAlnum <= 0 {
		opts.MaxBannerAlnum = def.MaxBannerAlnum
	}
	if opts.MaxResidualAlnum <= 0 {
		opts.MaxResidualAlnum = def.MaxResidualAlnum
	}
	if opts.MinDerivedAlnum <= 0 {
		opts.MinDerivedAlnum = def.MinDerivedAlnum
	}
	return &Selector{opts: opts}
}

// Select returns the best plain-text and HTML bodies under root.
func (s *Selector) Select(root *mimetree.Node) Selection {
	text := pick(candidates(root, "text/plain"), false)
	html := pick(candidates(root, "text/html"), true)

	sel := Selection{Text: text, HTML: html}
	if text != nil && s.MostlyBanner(*text) {
		sel.PlainMostlyBanner = true
		if html != nil {
			sel.Text = nil
			derived := strings.TrimSpace(FilterBanner(StripTags(*html)))
			if AlnumCount(derived) >= s.opts.MinDerivedAlnum {
				sel.Text = &derived
			}
		}
	}
	return sel
}

// MostlyBanner reports whether text is dominated by an external-sender banner.
func (s *Selector) MostlyBanner(text string) bool {
	if !strings.Contains(strings.ToLower(text), "external") {
		return false
	}
	if AlnumCount(text) >= s.opts.MaxBannerAlnum {
		return false
	}
	return AlnumCount(FilterBanner(text)) < s.opts.MaxResidualAlnum
}

func candidates(root *mimetree.Node, prefix string) []string {
	var out []string
	for _, leaf := range root.Leaves() {
		if !strings.HasPrefix(leaf.MimeType, prefix) {
			continue
		}
		if disp, ok := leaf.Header.First("Content-Disposition"); ok &&
			strings.HasPrefix(strings.ToLower(disp), "attachment") {
			continue
		}
		text, err := leaf.Text()
		if err != nil {
			continue
		}
		out = append(out, text)
	}
	return out
}

func score(text string, html bool) int {
	if html {
		text = StripTags(text)
	}
	return AlnumCount(FilterBanner(text))
}

func pick(cands []string, html bool) *string {
	if len(cands) == 0 {
		return nil
	}

	best, bestScore := -1, 0
	for i, c := range cands {
		if sc := score(c, html); sc > bestScore {
			best, bestScore = i, sc
		}
	}
	if best < 0 {
		best = 0
		for i, c := range cands {
			if len(c) > len(cands[best]) {
				best = i
			}
		}
	}

	chosen := cands[best]
	return &chosen
}
