package chunk

import (
	"github.com/codeatlas-dev/codeatlas/internal/analyzer"
)

// Normalizer maps a file's raw unit records into canonical chunks.
type Normalizer struct{}

// NewNormalizer creates a chunk normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize converts a FileAnalysis into chunks. Every occurrence becomes
// its own chunk: units are never merged by name alone, so a function later
// rebound as an arrow function yields two distinct chunks. File-level
// imports and exports are attached to every chunk from the file.
func (nr *Normalizer) Normalize(a *analyzer.FileAnalysis, language, sourcePath string) []Chunk {
	var chunks []Chunk

	for _, fn := range a.Functions {
		chunks = append(chunks, newChunk(KindFunction, fn.Name, language, sourcePath, fn.Code, fn.Params, nil, a))
	}
	for _, fn := range a.ArrowFunctions {
		chunks = append(chunks, newChunk(KindArrowFunction, fn.Name, language, sourcePath, fn.Code, fn.Params, nil, a))
	}
	for _, cl := range a.Classes {
		chunks = append(chunks, newChunk(KindClass, cl.Name, language, sourcePath, cl.Code, nil, cl.Methods, a))
	}

	return chunks
}

func newChunk(
	kind Kind,
	name, language, sourcePath, code string,
	params []string,
	methods []analyzer.Method,
	a *analyzer.FileAnalysis,
) Chunk {
	return Chunk{
		ID:         GenerateID(kind, name, language, code),
		Kind:       kind,
		Name:       name,
		Language:   language,
		SourcePath: sourcePath,
		Code:       code,
		Params:     params,
		Imports:    a.Imports,
		Exports:    a.Exports,
		Methods:    methods,
	}
}
