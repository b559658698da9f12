package fingerprint

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/rohankatakam/timpact/internal/models"
)

// declaration is a method-like unit found in a syntax tree. A declaration
// with an empty name only records that a class exists.
type declaration struct {
	class      string
	name       string
	descriptor string
	nodes      []*sitter.Node
}

// fingerprint hashes the qualified signature together with the normalized
// token stream of every node of the declaration
func (d declaration) fingerprint(code []byte) models.MethodFingerprint {
	var body strings.Builder
	start, end := 0, 0
	for i, n := range d.nodes {
		writeTokens(n, code, &body)
		s, e := int(n.StartPoint().Row)+1, int(n.EndPoint().Row)+1
		if i == 0 || s < start {
			start = s
		}
		if e > end {
			end = e
		}
	}

	m := models.MethodFingerprint{
		OwnerClass: d.class,
		Name:       d.name,
		Descriptor: d.descriptor,
		LineStart:  start,
		LineEnd:    end,
	}
	m.FingerprintID = Hash(m.SignatureKey(), body.String())
	return m
}

// Hash combines a qualified signature and a normalized body into a fingerprint id
func Hash(signature, normalizedBody string) string {
	h := xxhash.New()
	h.WriteString(signature)
	h.WriteString("\x00")
	h.WriteString(normalizedBody)
	return fmt.Sprintf("%016x", h.Sum64())
}

// getNodeText extracts text from a node using byte offsets
func getNodeText(node *sitter.Node, code []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if int(end) > len(code) {
		end = uint32(len(code))
	}
	return string(code[start:end])
}

// writeTokens serializes the subtree under node without whitespace or comments.
// Named inner nodes are bracketed with their type so block structure (which
// carries meaning in Python) survives normalization.
func writeTokens(node *sitter.Node, code []byte, sb *strings.Builder) {
	if node == nil || isComment(node.Type()) {
		return
	}
	if node.ChildCount() == 0 || isLiteral(node.Type()) {
		sb.WriteString(getNodeText(node, code))
		sb.WriteByte(' ')
		return
	}
	named := node.IsNamed()
	if named {
		sb.WriteString(node.Type())
		sb.WriteString("{ ")
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		writeTokens(node.Child(i), code, sb)
	}
	if named {
		sb.WriteString("} ")
	}
}

func isComment(nodeType string) bool {
	switch nodeType {
	case "comment", "line_comment", "block_comment":
		return true
	}
	return false
}

// isLiteral reports node types whose full text is significant, including
// spacing inside the literal
func isLiteral(nodeType string) bool {
	return strings.Contains(nodeType, "string") || nodeType == "character_literal" || nodeType == "rune_literal"
}

// collapseSpace replaces every whitespace run with a single space
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripSpace removes all whitespace
func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// namedChildren returns the named children of node
func namedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child != nil {
			out = append(out, child)
		}
	}
	return out
}
