package extract

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// networkCallNames is the callee vocabulary whose first argument is resolved
// and recorded at high confidence.
var networkCallNames = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true, "delete": true,
	"head": true, "options": true, "fetch": true, "ajax": true,
}

// Traversal bounds for pathological or adversarial input.
const (
	maxTraversalDepth = 256
	maxFoldDepth      = 12
)

// Resolver performs the syntax-tree pass: it constant-folds literal
// assignments into a symbol table scoped to one Resolve call, then revisits
// string-producing expressions and network-call arguments, resolving
// identifiers and member paths against that table.
type Resolver struct{}

// NewResolver returns a Resolver. The zero value is also usable; all state
// lives in per-call symbol tables, so one Resolver may serve concurrent
// extractions.
func NewResolver() *Resolver {
	return &Resolver{}
}

// symbolTable maps identifier names and member paths to their folded literal
// values. It lives for exactly one Resolve call.
type symbolTable struct {
	values map[string]string
}

func (t *symbolTable) lookup(name string) (string, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Resolve parses content tolerantly and returns resolved candidates. A parse
// failure returns an error so the extractor can degrade to the pattern and
// line passes.
func (r *Resolver) Resolve(ctx context.Context, content []byte, lines *lineIndex) ([]candidate, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	table := &symbolTable{values: make(map[string]string)}
	r.buildTable(root, content, table)
	return r.collect(root, content, table, lines), nil
}

// buildTable is the first traversal: it records literal assignments,
// template-literal constants and left-to-right `+` folds by identifier or
// member-path name. An explicit stack with a depth guard bounds the walk.
func (r *Resolver) buildTable(root *sitter.Node, content []byte, table *symbolTable) {
	type entry struct {
		node  *sitter.Node
		depth int
	}
	stack := []entry{{node: root}}

	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := e.node
		if node == nil || e.depth > maxTraversalDepth {
			continue
		}

		switch node.Type() {
		case "variable_declarator":
			name := node.ChildByFieldName("name")
			value := node.ChildByFieldName("value")
			if name != nil && name.Type() == "identifier" && value != nil {
				if folded, ok := r.fold(value, content, table, 0); ok {
					table.values[nodeText(name, content)] = folded
				}
			}
		case "assignment_expression":
			left := node.ChildByFieldName("left")
			right := node.ChildByFieldName("right")
			if left != nil && right != nil {
				leftType := left.Type()
				if leftType == "identifier" || leftType == "member_expression" {
					if folded, ok := r.fold(right, content, table, 0); ok {
						table.values[nodeText(left, content)] = folded
					}
				}
			}
		}

		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, entry{node: node.Child(i), depth: e.depth + 1})
		}
	}
}

// collect is the second traversal: template literals, concatenations and
// assignments that fold to strings become resolved-string candidates, and
// network-call arguments become high-confidence network-call candidates.
func (r *Resolver) collect(root *sitter.Node, content []byte, table *symbolTable, lines *lineIndex) []candidate {
	var out []candidate

	type entry struct {
		node  *sitter.Node
		depth int
	}
	stack := []entry{{node: root}}

	emit := func(node *sitter.Node, value string, cat Category, method string) {
		out = append(out, candidate{
			value:    value,
			category: cat,
			method:   method,
			line:     int(node.StartPoint().Row) + 1,
			context:  lines.textAt(int(node.StartByte())),
		})
	}

	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := e.node
		if node == nil || e.depth > maxTraversalDepth {
			continue
		}

		switch node.Type() {
		case "call_expression":
			if name, ok := r.networkCallName(node, content); ok {
				if arg := firstCallArgument(node); arg != nil {
					if folded, ok := r.fold(arg, content, table, 0); ok {
						emit(node, folded, CategoryNetworkCall, strings.ToUpper(name))
					}
				}
			}
		case "template_string", "binary_expression":
			if folded, ok := r.fold(node, content, table, 0); ok {
				emit(node, folded, CategoryResolvedString, "")
			}
		case "assignment_expression":
			if right := node.ChildByFieldName("right"); right != nil && right.Type() != "string" {
				if folded, ok := r.fold(right, content, table, 0); ok {
					emit(node, folded, CategoryResolvedString, "")
				}
			}
		}

		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, entry{node: node.Child(i), depth: e.depth + 1})
		}
	}

	return out
}

// fold resolves a node to a literal string when possible: string literals,
// template literals (with placeholders for unresolved substitutions),
// left-to-right `+` concatenations, and identifiers or member paths present
// in the symbol table.
func (r *Resolver) fold(node *sitter.Node, content []byte, table *symbolTable, depth int) (string, bool) {
	if node == nil || depth > maxFoldDepth {
		return "", false
	}

	switch node.Type() {
	case "string":
		return stringContent(node, content), true
	case "template_string":
		return r.foldTemplate(node, content, table, depth), true
	case "binary_expression":
		op := node.ChildByFieldName("operator")
		if op == nil || nodeText(op, content) != "+" {
			return "", false
		}
		left, okL := r.fold(node.ChildByFieldName("left"), content, table, depth+1)
		right, okR := r.fold(node.ChildByFieldName("right"), content, table, depth+1)
		if !okL || !okR {
			return "", false
		}
		return left + right, true
	case "identifier", "member_expression":
		return table.lookup(nodeText(node, content))
	case "parenthesized_expression":
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child.IsNamed() {
				return r.fold(child, content, table, depth+1)
			}
		}
	}
	return "", false
}

// foldTemplate concatenates a template literal's fragments. An unresolved
// substitution becomes a {placeholder} instead of aborting the rest of the
// literal.
func (r *Resolver) foldTemplate(node *sitter.Node, content []byte, table *symbolTable, depth int) string {
	var b strings.Builder
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "string_fragment":
			b.WriteString(nodeText(child, content))
		case "template_substitution":
			resolved := false
			for j := 0; j < int(child.ChildCount()); j++ {
				inner := child.Child(j)
				if !inner.IsNamed() {
					continue
				}
				if v, ok := r.fold(inner, content, table, depth+1); ok {
					b.WriteString(v)
					resolved = true
				}
				break
			}
			if !resolved {
				b.WriteString("{" + substitutionName(child, content) + "}")
			}
		}
	}
	return b.String()
}

func substitutionName(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.IsNamed() {
			return nodeText(child, content)
		}
	}
	return "?"
}

// networkCallName reports whether a call expression's callee matches the
// network-call vocabulary, returning the matched name.
func (r *Resolver) networkCallName(node *sitter.Node, content []byte) (string, bool) {
	callee := node.ChildByFieldName("function")
	if callee == nil {
		return "", false
	}
	var name string
	switch callee.Type() {
	case "identifier":
		name = nodeText(callee, content)
	case "member_expression":
		prop := callee.ChildByFieldName("property")
		if prop == nil {
			return "", false
		}
		name = nodeText(prop, content)
	default:
		return "", false
	}
	if networkCallNames[strings.ToLower(name)] {
		return name, true
	}
	return "", false
}

func firstCallArgument(node *sitter.Node) *sitter.Node {
	args := node.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		child := args.Child(i)
		if child.IsNamed() {
			return child
		}
	}
	return nil
}

func nodeText(node *sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}

// stringContent extracts a string literal's content without quotes.
func stringContent(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "string_fragment" {
			return nodeText(child, content)
		}
	}
	text := nodeText(node, content)
	if len(text) >= 2 {
		return text[1 : len(text)-1]
	}
	return text
}
