package analyzer

import (
	sitter "github.com/smacker/go-tree-sitter"
)

func analyzePython(root *sitter.Node, source []byte) *FileAnalysis {
	a := &FileAnalysis{
		Imports: extractPyImports(root, source),
		Exports: extractPyExports(root, source),
	}

	extractPyFunctions(a, root, source)
	extractPyLambdas(a, root, source)
	extractPyClasses(a, root, source)

	return a
}

// extractPyImports collects imported module paths in source order, from both
// plain imports and from-imports. Occurrences are not deduplicated.
func extractPyImports(root *sitter.Node, source []byte) []string {
	var imports []string
	walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement":
			for i := 0; i < int(n.ChildCount()); i++ {
				c := n.Child(i)
				if c.Type() == "dotted_name" {
					imports = append(imports, nodeContent(c, source))
				}
			}
		case "import_from_statement":
			for i := 0; i < int(n.ChildCount()); i++ {
				c := n.Child(i)
				if t := c.Type(); t == "dotted_name" || t == "relative_import" {
					imports = append(imports, nodeContent(c, source))
					break
				}
			}
		}
		return true
	})
	return imports
}

// extractPyExports treats an __all__ binding as the file's named export
// surface; Python has no other export statement.
func extractPyExports(root *sitter.Node, source []byte) []Export {
	var exports []Export
	walk(root, func(n *sitter.Node) bool {
		if n.Type() != "assignment" {
			return true
		}
		left := n.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" || nodeContent(left, source) != "__all__" {
			return true
		}
		exports = append(exports, Export{Style: ExportNamed, Code: nodeContent(n, source)})
		return true
	})
	return exports
}

// extractPyFunctions emits module-level function definitions, including
// functions nested in other functions. Class bodies are pruned: methods are
// extracted with their owning class.
func extractPyFunctions(a *FileAnalysis, root *sitter.Node, source []byte) {
	walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "class_definition":
			return false
		case "function_definition":
			a.Functions = append(a.Functions, FunctionUnit{
				Name:   resolveName(n.ChildByFieldName("name"), source),
				Params: identifierParams(n.ChildByFieldName("parameters"), source),
				Code:   nodeContent(n, source),
			})
		}
		return true
	})
}

// extractPyLambdas emits a unit for each lambda bound by assignment, the
// closure-style counterpart of a JavaScript arrow binding.
func extractPyLambdas(a *FileAnalysis, root *sitter.Node, source []byte) {
	walk(root, func(n *sitter.Node) bool {
		if n.Type() != "assignment" {
			return true
		}
		right := n.ChildByFieldName("right")
		if right == nil || right.Type() != "lambda" {
			return true
		}

		name := "anonymous"
		if left := n.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
			name = nodeContent(left, source)
		}

		a.ArrowFunctions = append(a.ArrowFunctions, FunctionUnit{
			Name:   name,
			Params: identifierParams(right.ChildByFieldName("parameters"), source),
			Code:   nodeContent(n, source),
		})
		return true
	})
}

func extractPyClasses(a *FileAnalysis, root *sitter.Node, source []byte) {
	walk(root, func(n *sitter.Node) bool {
		if n.Type() != "class_definition" {
			return true
		}

		nameNode := n.ChildByFieldName("name")
		if nameNode == nil {
			a.Errors = append(a.Errors, &ExtractionError{Kind: "class", Reason: "missing name field"})
			return true
		}

		a.Classes = append(a.Classes, ClassUnit{
			Name:    nodeContent(nameNode, source),
			Methods: extractPyMethods(n, source),
			Code:    nodeContent(n, source),
		})
		return true
	})
}

func extractPyMethods(classNode *sitter.Node, source []byte) []Method {
	body := classNode.ChildByFieldName("body")
	if body == nil {
		return nil
	}

	var methods []Method
	for i := 0; i < int(body.ChildCount()); i++ {
		member := body.Child(i)
		if member.Type() == "decorated_definition" {
			if def := member.ChildByFieldName("definition"); def != nil {
				member = def
			}
		}
		if member.Type() != "function_definition" {
			continue
		}

		mutations := mutationPaths(member, source, "self.")
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
