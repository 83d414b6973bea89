package syntax

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// MatchedNode is one named top-level construct located by
// FindNamedTopLevelConstructs, together with the syntactic category of
// the node and of its immediate parent (spec.md §3, Mask Span).
type MatchedNode struct {
	Node           *sitter.Node
	Name           string
	Category       string
	ParentCategory string
}

// candidateKinds lists, per language, the node types that can match a
// requested name. identifierOf reads the name each one is compared by.
var candidateKinds = map[Language]map[string]bool{
	Python: {
		"function_definition": true,
		"class_definition":    true,
	},
	TypeScript: {
		"function_declaration": true,
		"function_signature":   true,
		"class_declaration":    true,
		"method_definition":    true,
	},
	JavaScript: {
		"function_declaration": true,
		"class_declaration":    true,
		"method_definition":    true,
	},
}

// FindNamedTopLevelConstructs returns the outermost nodes matching the
// requested category set and whose identifier child equals one of the
// requested names by exact string comparison. Nested matches inside an
// already-matched ancestor are not returned. Duplicate resolutions to the
// same node (two requested names hitting one node) are deduplicated by
// node identity (byte range); of pairwise-overlapping top-level candidates
// (which tree-sitter's grammar should never actually produce at the top
// level) the one encountered first in pre-order wins.
func FindNamedTopLevelConstructs(tree *sitter.Tree, source []byte, names []string, lang Language) []MatchedNode {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	kinds := candidateKinds[lang]
	if kinds == nil {
		return nil
	}

	var out []MatchedNode
	seen := make(map[[2]uint32]bool)

	// A matched node's subtree is never recursed into, so no match is
	// returned from inside another match. Nodes that do not match are
	// walked through, so a method of an unrequested class is still found;
	// a class body passes its class's category down as the parent.
	var walk func(n *sitter.Node, parentCategory string)
	walk = func(n *sitter.Node, parentCategory string) {
		if n == nil {
			return
		}
		nodeType := n.Type()

		if kinds[nodeType] {
			if name, ok := identifierOf(n, source, nodeType); ok && wanted[name] {
				key := [2]uint32{n.StartByte(), n.EndByte()}
				if !seen[key] {
					seen[key] = true
					out = append(out, MatchedNode{
						Node:           n,
						Name:           name,
						Category:       nodeType,
						ParentCategory: parentCategory,
					})
				}
				return
			}
		}

		childParent := nodeType
		if nodeType == "class_body" {
			childParent = parentCategory
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i), childParent)
		}
	}

	walk(tree.RootNode(), "")
	return out
}

// walkChildrenForMethods descends one level into a matched class's body to
// find method_definition nodes, matching spec.md's allowance for
// "outermost matching nodes" where methods are logically one level below
// their enclosing class.
func walkChildrenForMethods(classNode *sitter.Node, classCategory string, source []byte, lang Language, wanted map[string]bool, seen map[[2]uint32]bool, out *[]MatchedNode) {
	if lang != TypeScript && lang != JavaScript {
		return
	}
	body := classNode.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() != "method_definition" {
			continue
		}
		name, ok := identifierOf(child, source, child.Type())
		if !ok || !wanted[name] {
			continue
		}
		key := [2]uint32{child.StartByte(), child.EndByte()}
		if seen[key] {
			continue
		}
		seen[key] = true
		*out = append(*out, MatchedNode{
			Node:           child,
			Name:           name,
			Category:       child.Type(),
			ParentCategory: classCategory,
		})
	}
}

// identifierOf extracts the identifier text used to match a candidate
// node's name: the "name" field for most node kinds, the
// property-identifier child for method definitions.
func identifierOf(n *sitter.Node, source []byte, nodeType string) (string, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return "", false
	}
	return nameNode.Content(source), true
}
