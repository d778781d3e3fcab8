// Package chunk provides the canonical retrievable unit and the
// normalization from raw analysis records into it.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/codeatlas-dev/codeatlas/internal/analyzer"
)

// Kind classifies a chunk's structural unit.
type Kind string

const (
	KindFunction      Kind = "function"
	KindArrowFunction Kind = "arrow_function"
	KindClass         Kind = "class"
	KindMethod        Kind = "method"
)

// Chunk is one independently retrievable structural code unit.
//
// A Chunk is immutable once created: re-ingesting changed content yields a
// new chunk id; the old chunk is superseded, never mutated in place.
type Chunk struct {
	ID         string   `json:"id"`
	Kind       Kind     `json:"kind"`
	Name       string   `json:"name"`
	Language   string   `json:"language"`
	SourcePath string   `json:"source_path"`
	Code       string   `json:"code"`
	Params     []string `json:"params,omitempty"`

	// File-level context, denormalized onto every chunk from the file.
	Imports []string          `json:"imports,omitempty"`
	Exports []analyzer.Export `json:"exports,omitempty"`

	// Kind-specific extras. Class chunks carry their method descriptors
	// here; methods are not promoted to top-level chunks.
	Methods []analyzer.Method `json:"methods,omitempty"`

	// Populated after the embedding step.
	Vector []float32 `json:"vector,omitempty"`

	// Populated by search, not stored.
	Score float32 `json:"-"`
}

// GenerateID computes the chunk's content-hash identity: a SHA-256 digest
// over the (kind, name, language, code) tuple with NUL separators. The id is
// a pure function of that tuple, so identical code in different files, or
// re-ingested unchanged, hashes to the same id. File path and timestamps are
// deliberately excluded.
func GenerateID(kind Kind, name, language, code string) string {
	h := sha256.New()
	for _, part := range []string{string(kind), name, language, code} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EmbeddingText is the single derived view of a chunk submitted to the
// embedding provider: name, surrounding import context, and code. It is
// reproducible from the chunk's stored fields alone, so ingestion-time and
// query-time vectors share one space.
func (c *Chunk) EmbeddingText() string {
	parts := []string{fmt.Sprintf("%s %s", c.Kind, c.Name)}

	if len(c.Imports) > 0 {
		parts = append(parts, "imports: "+strings.Join(c.Imports, ", "))
	}
	parts = append(parts, c.Code)

	return strings.Join(parts, "\n\n")
}
