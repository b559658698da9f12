package fingerprint

import (
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// extractPython collects module-level functions (owned by the module) and
// class methods (owned by module.Class, nested classes joined with '.').
// Statements outside any def become the ClassInitName member of the module
// or class whose body holds them.
func extractPython(root *sitter.Node, code []byte, module string) []declaration {
	return append([]declaration{{class: module}}, pythonBody(root, code, module)...)
}

func extractPythonClass(node *sitter.Node, code []byte, owner string) []declaration {
	class := owner + "." + getNodeText(node.ChildByFieldName("name"), code)
	return append([]declaration{{class: class}}, pythonBody(node.ChildByFieldName("body"), code, class)...)
}

func pythonBody(body *sitter.Node, code []byte, owner string) []declaration {
	var decls []declaration
	var initNodes []*sitter.Node
	for _, stmt := range namedChildren(body) {
		def := unwrapDecorated(stmt)
		switch def.Type() {
		case "function_definition":
			decls = append(decls, pythonFunction(stmt, def, owner, code))
		case "class_definition":
			decls = append(decls, extractPythonClass(def, code, owner)...)
		default:
			if !isComment(stmt.Type()) {
				initNodes = append(initNodes, stmt)
			}
		}
	}

	if len(initNodes) > 0 {
		decls = append(decls, declaration{class: owner, name: ClassInitName, descriptor: "()", nodes: initNodes})
	}
	return decls
}

// pythonFunction builds a declaration; outer includes decorators so their
// edits change the fingerprint
func pythonFunction(outer, def *sitter.Node, owner string, code []byte) declaration {
	descriptor := "()"
	if params := def.ChildByFieldName("parameters"); params != nil {
		descriptor = collapseSpace(getNodeText(params, code))
	}
	return declaration{
		class:      owner,
		name:       getNodeText(def.ChildByFieldName("name"), code),
		descriptor: descriptor,
		nodes:      []*sitter.Node{outer},
	}
}

func unwrapDecorated(node *sitter.Node) *sitter.Node {
	if node.Type() == "decorated_definition" {
		if def := node.ChildByFieldName("definition"); def != nil {
			return def
		}
	}
	return node
}

// pythonModule turns "lib/pkg/sub/mod.py" into "pkg.sub.mod" when lib is one
// of roots. The longest matching root is stripped; a file under no root is
// named from the repository root.
func pythonModule(filePath string, roots []string) string {
	p := strings.TrimPrefix(path.Clean(strings.ReplaceAll(filePath, "\\", "/")), "/")

	best := ""
	for _, root := range roots {
		root = strings.Trim(path.Clean(strings.ReplaceAll(root, "\\", "/")), "/")
		if root == "." || root == "" {
			continue
		}
		if strings.HasPrefix(p, root+"/") && len(root) > len(best) {
			best = root
		}
	}
	p = strings.TrimPrefix(p, best+"/")

	p = strings.TrimSuffix(p, ".py")
	p = strings.TrimSuffix(p, "/__init__")
	return strings.ReplaceAll(p, "/", ".")
}
