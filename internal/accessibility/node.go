package accessibility

// Node is an in-memory Element, used for fixtures and by providers that
// snapshot a tree before walking it.
type Node struct {
	Attrs Attributes
	Kids  []*Node

	// AttrErr and ChildErr simulate failing attribute reads.
	AttrErr  error
	ChildErr error
}

// NewNode builds a node with the given role, value and children.
func NewNode(role, value string, kids ...*Node) *Node {
	return &Node{Attrs: Attributes{Role: role, Value: value}, Kids: kids}
}

func (n *Node) Attributes() (Attributes, error) {
	if n.AttrErr != nil {
		return Attributes{}, n.AttrErr
	}
	return n.Attrs, nil
}

func (n *Node) Children() ([]Element, error) {
	if n.ChildErr != nil {
		return nil, n.ChildErr
	}
	out := make([]Element, len(n.Kids))
	for i, k := range n.Kids {
		out[i] = k
	}
	return out, nil
}
