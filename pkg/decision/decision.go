// Package decision parses decision records: markdown files with a YAML
// front matter block describing the decision's identity, status, and
// relationships.
package decision

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Status values a decision front matter may carry.
type Status string

const (
	StatusProposed   Status = "proposed"
	StatusAccepted   Status = "accepted"
	StatusSuperseded Status = "superseded"
	StatusDeprecated Status = "deprecated"
)

func (s Status) valid() bool {
	switch s {
	case StatusProposed, StatusAccepted, StatusSuperseded, StatusDeprecated:
		return true
	}
	return false
}

// Metadata is the YAML front matter of a decision file.
type Metadata struct {
	ID         uint32   `yaml:"id"`
	Title      string   `yaml:"title"`
	Status     Status   `yaml:"status"`
	Date       string   `yaml:"date,omitempty"`
	Tags       []string `yaml:"tags,omitempty"`
	Supersedes []uint32 `yaml:"supersedes,omitempty"`
}

// Decision is one parsed decision record.
type Decision struct {
	Path        string
	Metadata    Metadata
	Body        string
	ContentHash string
}

var frontMatterDelim = []byte("---")

// Parse parses a decision record from raw file bytes. path is recorded
// on the result and used in error messages only.
func Parse(path string, data []byte) (*Decision, error) {
	meta, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var md Metadata
	if err := yaml.Unmarshal(meta, &md); err != nil {
		return nil, fmt.Errorf("%s: parse front matter: %w", path, err)
	}
	if strings.TrimSpace(md.Title) == "" {
		return nil, fmt.Errorf("%s: front matter is missing title", path)
	}
	if md.Status == "" {
		md.Status = StatusProposed
	}
	if !md.Status.valid() {
		return nil, fmt.Errorf("%s: unknown status %q", path, md.Status)
	}

	sum := sha256.Sum256(data)

	return &Decision{
		Path:        path,
		Metadata:    md,
		Body:        strings.TrimSpace(string(body)),
		ContentHash: hex.EncodeToString(sum[:]),
	}, nil
}

// ParseFile reads and parses a decision record from disk.
func ParseFile(path string) (*Decision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read decision file: %w", err)
	}
	return Parse(path, data)
}

// splitFrontMatter separates the leading `---` fenced YAML block from
// the markdown body.
func splitFrontMatter(data []byte) (meta, body []byte, err error) {
	trimmed := bytes.TrimLeft(data, "\ufeff\n\r ")
	if !bytes.HasPrefix(trimmed, frontMatterDelim) {
		return nil, nil, fmt.Errorf("no front matter block")
	}

	rest := trimmed[len(frontMatterDelim):]
	rest = bytes.TrimPrefix(rest, []byte("\r"))
	if len(rest) == 0 || rest[0] != '\n' {
		return nil, nil, fmt.Errorf("malformed front matter delimiter")
	}
	rest = rest[1:]

	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, nil, fmt.Errorf("unterminated front matter block")
	}

	meta = rest[:end]
	body = rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return meta, body, nil
}
