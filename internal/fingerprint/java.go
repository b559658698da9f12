package fingerprint

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ClassInitName is the synthetic member that carries a class's field
// initializers, initializer blocks and enum constants, and the top-level
// state of a Go package or Python module. Any suite that loads the owner
// depends on it.
const ClassInitName = "<clinit>"

// ConstructorName is the member name of Java constructors
const ConstructorName = "<init>"

var javaTypeDecls = map[string]bool{
	"class_declaration":           true,
	"interface_declaration":       true,
	"enum_declaration":            true,
	"record_declaration":          true,
	"annotation_type_declaration": true,
}

// extractJava collects methods, constructors and class-init members of every
// (nested) type. Classes are named the way the JVM names them: package
// qualified, nested types joined with '$'.
func extractJava(root *sitter.Node, code []byte) []declaration {
	pkg := ""
	var decls []declaration

	for _, child := range namedChildren(root) {
		switch {
		case child.Type() == "package_declaration":
			for _, n := range namedChildren(child) {
				if n.Type() == "scoped_identifier" || n.Type() == "identifier" {
					pkg = getNodeText(n, code)
				}
			}
		case javaTypeDecls[child.Type()]:
			prefix := ""
			if pkg != "" {
				prefix = pkg + "."
			}
			decls = append(decls, extractJavaType(child, code, prefix)...)
		}
	}
	return decls
}

// extractJavaType handles one type declaration; qualifier is either the
// package prefix ("com.acme.") or the enclosing class followed by '$'
func extractJavaType(node *sitter.Node, code []byte, qualifier string) []declaration {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	class := qualifier + getNodeText(nameNode, code)
	decls := []declaration{{class: class}}

	var initNodes []*sitter.Node
	if params := node.ChildByFieldName("parameters"); params != nil && node.Type() == "record_declaration" {
		initNodes = append(initNodes, params)
	}

	var visit func(body *sitter.Node)
	visit = func(body *sitter.Node) {
		for _, member := range namedChildren(body) {
			switch member.Type() {
			case "method_declaration", "annotation_type_element_declaration":
				decls = append(decls, declaration{
					class:      class,
					name:       getNodeText(member.ChildByFieldName("name"), code),
					descriptor: javaDescriptor(member.ChildByFieldName("parameters"), code),
					nodes:      []*sitter.Node{member},
				})
			case "constructor_declaration", "compact_constructor_declaration":
				decls = append(decls, declaration{
					class:      class,
					name:       ConstructorName,
					descriptor: javaDescriptor(member.ChildByFieldName("parameters"), code),
					nodes:      []*sitter.Node{member},
				})
			case "enum_body_declarations":
				visit(member)
			case "field_declaration", "constant_declaration", "static_initializer", "block", "enum_constant":
				initNodes = append(initNodes, member)
			default:
				if javaTypeDecls[member.Type()] {
					decls = append(decls, extractJavaType(member, code, class+"$")...)
				}
			}
		}
	}
	visit(node.ChildByFieldName("body"))

	if len(initNodes) > 0 {
		decls = append(decls, declaration{
			class:      class,
			name:       ClassInitName,
			descriptor: "()",
			nodes:      initNodes,
		})
	}
	return decls
}

// javaDescriptor renders parameter types as "(int,List<String>,String...)"
func javaDescriptor(params *sitter.Node, code []byte) string {
	if params == nil {
		return "()"
	}
	var types []string
	for _, p := range namedChildren(params) {
		switch p.Type() {
		case "formal_parameter":
			t := stripSpace(getNodeText(p.ChildByFieldName("type"), code))
			if dims := p.ChildByFieldName("dimensions"); dims != nil {
				t += stripSpace(getNodeText(dims, code))
			}
			types = append(types, t)
		case "spread_parameter":
			for _, n := range namedChildren(p) {
				if n.Type() != "modifiers" && n.Type() != "variable_declarator" {
					types = append(types, stripSpace(getNodeText(n, code))+"...")
					break
				}
			}
		}
	}
	return "(" + strings.Join(types, ",") + ")"
}
