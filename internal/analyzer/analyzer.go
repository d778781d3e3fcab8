// Package analyzer walks parsed syntax trees and produces raw per-file unit
// records: imports, exports, functions, arrow-function bindings, and classes
// with their methods.
package analyzer

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codeatlas-dev/codeatlas/internal/parser"
)

// ExtractionError reports a unit whose tree shape did not match the expected
// structural pattern. The unit is skipped; extraction of the remaining units
// in the file continues.
type ExtractionError struct {
	Kind   string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.Kind, e.Reason)
}

// ExportStyle classifies how a file exports a symbol.
type ExportStyle string

const (
	ExportNamed    ExportStyle = "named"
	ExportDefault  ExportStyle = "default"
	ExportCommonJS ExportStyle = "commonjs"
)

// Export describes one export statement of a file.
type Export struct {
	Style ExportStyle `json:"style"`
	Code  string      `json:"code"`
}

// Method describes one method of a class unit.
type Method struct {
	Name         string   `json:"name"`
	Params       []string `json:"params"`
	Calls        []string `json:"calls"`
	MutatesState bool     `json:"mutatesState"`
	Mutations    []string `json:"mutations"`
	Code         string   `json:"code"`
}

// FunctionUnit is a top-level function declaration or an arrow/lambda
// function bound to a name.
type FunctionUnit struct {
	Name   string
	Params []string
	Code   string
}

// ClassUnit is a class declaration with its methods.
type ClassUnit struct {
	Name    string
	Methods []Method
	Code    string
}

// FileAnalysis aggregates everything extracted from one file. It exists only
// between parsing and normalization and is never persisted.
type FileAnalysis struct {
	Imports        []string
	Exports        []Export
	Functions      []FunctionUnit
	ArrowFunctions []FunctionUnit
	Classes        []ClassUnit

	// Errors holds per-unit extraction failures. A recorded error means the
	// unit was skipped, not that the analysis failed.
	Errors []error
}

// Analyze extracts structural units from a parsed tree. The tree and source
// are read-only; analysis builds no shared mutable state, so it is safe to
// run fully in parallel across files.
func Analyze(lang parser.Language, root *sitter.Node, source []byte) (*FileAnalysis, error) {
	switch lang {
	case parser.LanguageJavaScript, parser.LanguageTypeScript:
		return analyzeJavaScript(root, source), nil
	case parser.LanguagePython:
		return analyzePython(root, source), nil
	default:
		return nil, fmt.Errorf("extraction not implemented for: %s", lang)
	}
}

// orderedSet is a deduplicated string collection preserving first-occurrence
// order, so set-valued output is deterministic.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) Add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) Items() []string { return s.items }

// walk visits nodes in pre-order using an explicit stack. visit returns
// false to prune the node's subtree. Error-marker subtrees from best-effort
// parses are always pruned.
func walk(root *sitter.Node, visit func(n *sitter.Node) bool) {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.Type() == "ERROR" || !visit(n) {
			continue
		}

		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}
}

func nodeContent(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// resolveName returns the text of a name node, or "anonymous" when the unit
// has no bound name.
func resolveName(node *sitter.Node, source []byte) string {
	if node == nil || node.IsMissing() {
		return "anonymous"
	}
	name := nodeContent(node, source)
	if name == "" {
		return "anonymous"
	}
	return name
}

// identifierParams collects the ordered identifier children of a parameter
// list node. Non-identifier parameter forms (defaults, destructuring) are
// ignored.
func identifierParams(paramsNode *sitter.Node, source []byte) []string {
	if paramsNode == nil {
		return nil
	}
	var params []string
	for i := 0; i < int(paramsNode.ChildCount()); i++ {
		p := paramsNode.Child(i)
		if p.Type() == "identifier" {
			params = append(params, nodeContent(p, source))
		}
	}
	return params
}

// callSites collects the textual callee of every invocation in a subtree as
// an insertion-ordered set: duplicates collapse, first occurrence wins.
// Callees are recorded as written, not resolved to definitions.
func callSites(node *sitter.Node, source []byte) []string {
	calls := newOrderedSet()
	walk(node, func(n *sitter.Node) bool {
		if t := n.Type(); t != "call_expression" && t != "call" {
			return true
		}
		if fn := n.ChildByFieldName("function"); fn != nil {
			calls.Add(nodeContent(fn, source))
		}
		return true
	})
	return calls.Items()
}

// mutationPaths records every property path assigned through the given
// instance receiver ("this." or "self."), as an insertion-ordered set.
func mutationPaths(node *sitter.Node, source []byte, receiver string) []string {
	mutations := newOrderedSet()
	walk(node, func(n *sitter.Node) bool {
		if t := n.Type(); t != "assignment_expression" && t != "assignment" {
			return true
		}
		left := n.ChildByFieldName("left")
		if left == nil {
			return true
		}
		if t := left.Type(); t != "member_expression" && t != "attribute" {
			return true
		}
		if lhs := nodeContent(left, source); strings.HasPrefix(lhs, receiver) {
			mutations.Add(lhs)
		}
		return true
	})
	return mutations.Items()
}
