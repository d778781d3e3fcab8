package analyzer

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

func analyzeJavaScript(root *sitter.Node, source []byte) *FileAnalysis {
	a := &FileAnalysis{
		Imports: extractJSImports(root, source),
		Exports: extractJSExports(root, source),
	}

	extractJSFunctions(a, root, source)
	extractJSArrowFunctions(a, root, source)
	extractJSClasses(a, root, source)

	return a
}

// extractJSImports collects the module specifiers of import statements in
// source order. Occurrences are preserved as written, not deduplicated.
func extractJSImports(root *sitter.Node, source []byte) []string {
	var imports []string
	walk(root, func(n *sitter.Node) bool {
		if n.Type() != "import_statement" {
			return true
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.Type() == "string" {
				imports = append(imports, strings.Trim(nodeContent(c, source), `'"`))
			}
		}
		return true
	})
	return imports
}

// extractJSExports classifies export statements into named, default, and
// CommonJS-style descriptors.
func extractJSExports(root *sitter.Node, source []byte) []Export {
	var exports []Export
	walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "export_statement":
			style := ExportNamed
			for i := 0; i < int(n.ChildCount()); i++ {
				if n.Child(i).Type() == "default" {
					style = ExportDefault
					break
				}
			}
			exports = append(exports, Export{Style: style, Code: nodeContent(n, source)})

		case "assignment_expression":
			left := n.ChildByFieldName("left")
			if left == nil {
				return true
			}
			lhs := nodeContent(left, source)
			if strings.HasPrefix(lhs, "module.exports") || strings.HasPrefix(lhs, "exports.") {
				exports = append(exports, Export{Style: ExportCommonJS, Code: nodeContent(n, source)})
			}
		}
		return true
	})
	return exports
}

func extractJSFunctions(a *FileAnalysis, root *sitter.Node, source []byte) {
	walk(root, func(n *sitter.Node) bool {
		if n.Type() != "function_declaration" {
			return true
		}
		a.Functions = append(a.Functions, FunctionUnit{
			Name:   resolveName(n.ChildByFieldName("name"), source),
			Params: identifierParams(n.ChildByFieldName("parameters"), source),
			Code:   nodeContent(n, source),
		})
		return true
	})
}

// extractJSArrowFunctions emits a unit for each variable binding whose
// initializer is an arrow function, named after the binding.
func extractJSArrowFunctions(a *FileAnalysis, root *sitter.Node, source []byte) {
	walk(root, func(n *sitter.Node) bool {
		if n.Type() != "variable_declarator" {
			return true
		}
		value := n.ChildByFieldName("value")
		if value == nil || value.Type() != "arrow_function" {
			return true
		}

		name := "anonymous"
		if nameNode := n.ChildByFieldName("name"); nameNode != nil && nameNode.Type() == "identifier" {
			name = resolveName(nameNode, source)
		}

		a.ArrowFunctions = append(a.ArrowFunctions, FunctionUnit{
			Name:   name,
			Params: jsArrowParams(value, source),
			Code:   nodeContent(n, source),
		})
		return true
	})
}

// jsArrowParams handles both arrow forms: a bare single parameter
// (x => ...) and a parenthesized list ((a, b) => ...).
func jsArrowParams(fn *sitter.Node, source []byte) []string {
	if p := fn.ChildByFieldName("parameter"); p != nil {
		return []string{nodeContent(p, source)}
	}
	return identifierParams(fn.ChildByFieldName("parameters"), source)
}

func extractJSClasses(a *FileAnalysis, root *sitter.Node, source []byte) {
	walk(root, func(n *sitter.Node) bool {
		if n.Type() != "class_declaration" {
			return true
		}

		nameNode := n.ChildByFieldName("name")
		if nameNode == nil {
			a.Errors = append(a.Errors, &ExtractionError{Kind: "class", Reason: "missing name field"})
			return true
		}

		a.Classes = append(a.Classes, ClassUnit{
			Name:    nodeContent(nameNode, source),
			Methods: extractJSMethods(n, source),
			Code:    nodeContent(n, source),
		})
		return true
	})
}

func extractJSMethods(classNode *sitter.Node, source []byte) []Method {
	body := classNode.ChildByFieldName("body")
	if body == nil {
		return nil
	}

	var methods []Method
	for i := 0; i < int(body.ChildCount()); i++ {
		member := body.Child(i)
		if member.Type() != "method_definition" {
			continue
		}

		mutations := mutationPaths(member, source, "this.")
		methods = append(methods, Method{
			Name:         resolveName(member.ChildByFieldName("name"), source),
			Params:       identifierParams(member.ChildByFieldName("parameters"), source),
			Calls:        callSites(member, source),
			MutatesState: len(mutations) > 0,
			Mutations:    mutations,
			Code:         nodeContent(member, source),
		})
	}
	return methods
}
