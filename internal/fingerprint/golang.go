package fingerprint

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// extractGo collects functions (owned by the package) and methods (owned by
// package.ReceiverType). Package-level const, var and type declarations and
// init functions become the package's ClassInitName member.
func extractGo(root *sitter.Node, code []byte) []declaration {
	pkg := ""
	var decls []declaration
	var initNodes []*sitter.Node

	for _, child := range namedChildren(root) {
		switch child.Type() {
		case "package_clause":
			for _, n := range namedChildren(child) {
				if n.Type() == "package_identifier" {
					pkg = getNodeText(n, code)
				}
			}
			decls = append(decls, declaration{class: pkg})
		case "const_declaration", "var_declaration", "type_declaration":
			initNodes = append(initNodes, child)
		case "function_declaration":
			name := getNodeText(child.ChildByFieldName("name"), code)
			if name == "init" {
				initNodes = append(initNodes, child)
				continue
			}
			decls = append(decls, declaration{
				class:      pkg,
				name:       name,
				descriptor: goDescriptor(child, code),
				nodes:      []*sitter.Node{child},
			})
		case "method_declaration":
			owner := pkg + "." + goReceiverType(child.ChildByFieldName("receiver"), code)
			decls = append(decls,
				declaration{class: owner},
				declaration{
					class:      owner,
					name:       getNodeText(child.ChildByFieldName("name"), code),
					descriptor: goDescriptor(child, code),
					nodes:      []*sitter.Node{child},
				})
		}
	}

	if len(initNodes) > 0 {
		decls = append(decls, declaration{class: pkg, name: ClassInitName, descriptor: "()", nodes: initNodes})
	}
	return decls
}

// goDescriptor is the parameter list with whitespace collapsed
func goDescriptor(fn *sitter.Node, code []byte) string {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		return "()"
	}
	return collapseSpace(getNodeText(params, code))
}

// goReceiverType returns the bare receiver type name: "(s *Server[T])" -> "Server"
func goReceiverType(receiver *sitter.Node, code []byte) string {
	for _, param := range namedChildren(receiver) {
		if param.Type() != "parameter_declaration" {
			continue
		}
		t := getNodeText(param.ChildByFieldName("type"), code)
		t = strings.TrimLeft(strings.TrimSpace(t), "*")
		if i := strings.IndexByte(t, '['); i >= 0 {
			t = t[:i]
		}
		return strings.TrimSpace(t)
	}
	return ""
}
