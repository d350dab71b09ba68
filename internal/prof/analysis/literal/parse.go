package literal

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// ObjectShape is what the source text of an object literal declares.
type ObjectShape struct {
	// Fields are the property names in source order. Computed names keep
	// their brackets and spreads are listed as "...expr".
	Fields []string

	// HasGetterSetter is set when the literal defines an accessor.
	HasGetterSetter bool
}

// ParseObjectLiteral parses the source text of one object literal.
//
// Example:
//
//	shape, err := literal.ParseObjectLiteral(ctx, `{a: 1, get b() { return 2 }}`)
//	// shape.Fields == []string{"a", "b"}, shape.HasGetterSetter == true
func ParseObjectLiteral(ctx context.Context, text string) (ObjectShape, error) {
	// Parenthesized so that "{...}" is an expression, not a block.
	src := []byte("(" + text + ")")

	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return ObjectShape{}, fmt.Errorf("failed to parse object literal: %w", err)
	}
	defer tree.Close()

	obj := findObject(tree.RootNode())
	if obj == nil {
		return ObjectShape{}, fmt.Errorf("no object literal in %q", text)
	}
	return shapeOf(obj, src), nil
}

// findObject returns the first object node in pre-order.
func findObject(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "object" {
		return n
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if obj := findObject(n.NamedChild(i)); obj != nil {
			return obj
		}
	}
	return nil
}

func shapeOf(obj *sitter.Node, src []byte) ObjectShape {
	shape := ObjectShape{Fields: []string{}}
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		member := obj.NamedChild(i)

		switch member.Type() {
		case "pair":
			shape.Fields = append(shape.Fields, keyName(member.ChildByFieldName("key"), src))
		case "shorthand_property_identifier":
			shape.Fields = append(shape.Fields, member.Content(src))
		case "method_definition":
			shape.Fields = append(shape.Fields, keyName(member.ChildByFieldName("name"), src))
			if isAccessor(member) {
				shape.HasGetterSetter = true
			}
		case "spread_element":
			shape.Fields = append(shape.Fields, member.Content(src))
		}
	}
	return shape
}

// isAccessor reports whether a method definition starts with get or set.
func isAccessor(method *sitter.Node) bool {
	for i := 0; i < int(method.ChildCount()); i++ {
		switch method.Child(i).Type() {
		case "get", "set":
			return true
		case "property_identifier", "string", "number", "computed_property_name", "private_property_identifier":
			return false
		}
	}
	return false
}

func keyName(key *sitter.Node, src []byte) string {
	if key == nil {
		return ""
	}
	text := key.Content(src)
	if key.Type() == "string" {
		return strings.Trim(text, `"'`)
	}
	return text
}
