package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// TypeScript sources are parsed with the JavaScript grammar: the structural
// units we extract (functions, arrow bindings, classes) share node shapes.
func getJavaScriptLanguage() *sitter.Language {
	return javascript.GetLanguage()
}
