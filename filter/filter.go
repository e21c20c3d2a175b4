package filter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
	IncludePath   []string
	ExcludePath   []string
}

// Filter holds compiled regex patterns for filtering input files and messages.
// It is safe for concurrent use.
type Filter struct {
	includeMode    bool
	excludeMode    bool
	includeHeader  *patternSet
	includeBody    *patternSet
	excludeHeader  *patternSet
	excludeBody    *patternSet
	includePath    *patternSet
	excludePath    *patternSet
	needHeaderText bool
	needBodyText   bool
}

// PatternStats reports how often each pattern of one group matched.
type PatternStats struct {
	Patterns []string
	Hits     map[string]int
}

// Stats is a snapshot of the hit counters of every pattern group.
type Stats struct {
	IncludeHeader PatternStats
	IncludeBody   PatternStats
	ExcludeHeader PatternStats
	ExcludeBody   PatternStats
	IncludePath   PatternStats
	ExcludePath   PatternStats
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeHeader, err := compilePatterns(opts.ExcludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}
	includePath, err := compilePatterns(opts.IncludePath)
	if err != nil {
		return nil, fmt.Errorf("compile include-path pattern: %w", err)
	}
	excludePath, err := compilePatterns(opts.ExcludePath)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-path pattern: %w", err)
	}

	includeActive := includeHeader.len() > 0 || includeBody.len() > 0
	excludeActive := excludeHeader.len() > 0 || excludeBody.len() > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	return &Filter{
		includeMode:    includeActive,
		excludeMode:    excludeActive,
		includeHeader:  includeHeader,
		includeBody:    includeBody,
		excludeHeader:  excludeHeader,
		excludeBody:    excludeBody,
		includePath:    includePath,
		excludePath:    excludePath,
		needHeaderText: includeHeader.len() > 0 || excludeHeader.len() > 0,
		needBodyText:   includeBody.len() > 0 || excludeBody.len() > 0,
	}, nil
}

// Active reports whether any message-level pattern is configured.
func (f *Filter) Active() bool {
	return f.includeMode || f.excludeMode
}

// Allows returns true if the message passes the filter criteria.
func (f *Filter) Allows(header, body []byte) bool {
	var headerText, bodyText string
	if f.needHeaderText {
		headerText = string(header)
	}
	if f.needBodyText {
		bodyText = string(body)
	}

	if f.includeMode {
		matched := f.includeHeader.match(headerText) || f.includeBody.match(bodyText)
		return matched
	}

	if f.excludeMode {
		if f.excludeHeader.match(headerText) || f.excludeBody.match(bodyText) {
			return false
		}
	}

	return true
}

// AllowsMessage splits raw into header and body and applies Allows.
func (f *Filter) AllowsMessage(raw []byte) bool {
	if !f.Active() {
		return true
	}
	header, body := SplitRawMessage(raw)
	return f.Allows(header, body)
}

// AllowsPath applies the path patterns to a slash separated relative path.
func (f *Filter) AllowsPath(relPath string) bool {
	if f.includePath.len() > 0 && !f.includePath.match(relPath) {
		return false
	}
	return !f.excludePath.match(relPath)
}

// Stats returns the per-pattern hit counters.
func (f *Filter) Stats() Stats {
	return Stats{
		IncludeHeader: f.includeHeader.stats(),
		IncludeBody:   f.includeBody.stats(),
		ExcludeHeader: f.excludeHeader.stats(),
		ExcludeBody:   f.excludeBody.stats(),
		IncludePath:   f.includePath.stats(),
		ExcludePath:   f.excludePath.stats(),
	}
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}

type patternSet struct {
	patterns []*regexp.Regexp

	mu   sync.Mutex
	hits map[string]int
}

func compilePatterns(patterns []string) (*patternSet, error) {
	set := &patternSet{hits: make(map[string]int)}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		set.patterns = append(set.patterns, re)
	}
	return set, nil
}

func (s *patternSet) len() int {
	return len(s.patterns)
}

// match reports whether any pattern matches and credits the first match.
func (s *patternSet) match(text string) bool {
	for _, re := range s.patterns {
		if re.MatchString(text) {
			s.mu.Lock()
			s.hits[re.String()]++
			s.mu.Unlock()
			return true
		}
	}
	return false
}

func (s *patternSet) stats() PatternStats {
	out := PatternStats{Hits: make(map[string]int, len(s.patterns))}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, re := range s.patterns {
		out.Patterns = append(out.Patterns, re.String())
		out.Hits[re.String()] = s.hits[re.String()]
	}
	return out
}
