package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

func getPythonLanguage() *sitter.Language {
	return python.GetLanguage()
}
