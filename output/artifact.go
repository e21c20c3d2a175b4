package output

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
)

// artifact is a gzip-compressed output file whose SHA-256 is computed over
// the compressed bytes as they are written.
type artifact struct {
	name string
	path string
	file *os.File
	gz   *gzip.Writer
	sum  hash.Hash
}

func createArtifact(dir, name string) (*artifact, error) {
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	sum := sha256.New()
	return &artifact{
		name: name,
		path: path,
		file: file,
		gz:   gzip.NewWriter(io.MultiWriter(file, sum)),
		sum:  sum,
	}, nil
}

func (a *artifact) Write(p []byte) (int, error) {
	return a.gz.Write(p)
}

func (a *artifact) writeJSONLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s line: %w", a.name, err)
	}
	data = append(data, '\n')
	if _, err := a.gz.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", a.name, err)
	}
	return nil
}

func (a *artifact) writeRow(fields []string) error {
	if err := WriteCSVRow(a.gz, fields); err != nil {
		return fmt.Errorf("write %s: %w", a.name, err)
	}
	return nil
}

// close finishes the gzip stream and returns the hex SHA-256 of the file.
func (a *artifact) close() (string, error) {
	if err := a.gz.Close(); err != nil {
		_ = a.file.Close()
		return "", fmt.Errorf("finish %s: %w", a.name, err)
	}
	if err := a.file.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", a.name, err)
	}
	return hex.EncodeToString(a.sum.Sum(nil)), nil
}

// abort closes the file without caring about a consistent gzip trailer.
func (a *artifact) abort() {
	_ = a.gz.Close()
	_ = a.file.Close()
}
