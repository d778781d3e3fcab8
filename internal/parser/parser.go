// Package parser provides tree-sitter based parsing of source text into
// syntax trees.
package parser

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// Language represents a supported programming language.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
)

// ParseError reports source text that could not be parsed at all, such as
// invalid UTF-8 input. Syntactically malformed but decodable input does not
// produce a ParseError: the parser returns a best-effort tree with
// error-marker nodes instead.
type ParseError struct {
	Language Language
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Language, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parser wraps tree-sitter for a specific language.
//
// A Parser holds internal grammar state and is not safe for concurrent use.
// Callers needing parallelism create one Parser per worker.
type Parser struct {
	language Language
	parser   *sitter.Parser
}

// NewParser creates a parser for the given language.
func NewParser(lang Language) (*Parser, error) {
	p := sitter.NewParser()

	switch lang {
	case LanguagePython:
		p.SetLanguage(getPythonLanguage())
	case LanguageJavaScript, LanguageTypeScript:
		p.SetLanguage(getJavaScriptLanguage())
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}

	return &Parser{
		language: lang,
		parser:   p,
	}, nil
}

// Language returns the language this parser was created for.
func (p *Parser) Language() Language { return p.language }

// Parse parses source text and returns the syntax tree. Parsing is
// deterministic and side-effect-free for the same bytes. The caller owns
// the returned tree and must Close it.
func (p *Parser) Parse(ctx context.Context, source []byte) (*sitter.Tree, error) {
	if !utf8.Valid(source) {
		return nil, &ParseError{Language: p.language, Err: fmt.Errorf("source is not valid UTF-8")}
	}

	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, &ParseError{Language: p.language, Err: err}
	}

	return tree, nil
}

// DetectLanguage determines language from file extension.
func DetectLanguage(filePath string) (Language, bool) {
	switch {
	case hasExtension(filePath, ".py"):
		return LanguagePython, true
	case hasExtension(filePath, ".js", ".jsx", ".mjs", ".cjs"):
		return LanguageJavaScript, true
	case hasExtension(filePath, ".ts", ".tsx"):
		return LanguageTypeScript, true
	default:
		return "", false
	}
}

func hasExtension(path string, exts ...string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
