// Package tree implements rooted phylogenetic trees with support for
// per-branch rate classes and Newick input/output.
package tree

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mode is a parser state.
type Mode int

const (
	// NORMAL is the default parser state (names).
	NORMAL Mode = iota
	// LENGTH means branch length is expected.
	LENGTH
	// CLASS means rate class label is expected.
	CLASS
)

// Tree is a rooted phylogenetic tree. It wraps the root node and
// caches traversal orders.
type Tree struct {
	*Node
	nNodes    int
	nodes     []*Node
	nodeOrder []*Node
}

// ClearCache invalidates cached traversal orders. Call it after
// changing the tree topology.
func (tree *Tree) ClearCache() {
	tree.nNodes = 0
	tree.nodes = nil
	tree.nodeOrder = nil
}

// NNodes returns the total number of nodes.
func (tree *Tree) NNodes() int {
	if tree.nNodes == 0 {
		tree.nNodes = tree.NSubNodes()
	}
	return tree.nNodes
}

// Nodes returns all nodes indexed by node id.
func (tree *Tree) Nodes() []*Node {
	if tree.nodes == nil {
		tree.nodes = make([]*Node, tree.NNodes())
		for node := range tree.Walker(nil) {
			tree.nodes[node.Id] = node
		}
	}
	return tree.nodes
}

// Terminals returns a channel with all the leaves.
func (tree *Tree) Terminals() <-chan *Node {
	return tree.Walker(func(n *Node) bool {
		return n.IsTerminal()
	})
}

// NonTerminals returns a channel with all the internal nodes.
func (tree *Tree) NonTerminals() <-chan *Node {
	return tree.Walker(func(node *Node) bool {
		return !node.IsTerminal()
	})
}

// ClassNodes returns a channel with all nodes of a given rate class.
func (tree *Tree) ClassNodes(class int) <-chan *Node {
	return tree.Walker(func(node *Node) bool {
		return node.Class == class
	})
}

// NLeaves returns the number of leaves.
func (tree *Tree) NLeaves() (i int) {
	for range tree.Terminals() {
		i++
	}
	return
}

// Walker returns a channel iterating over nodes in pre-order,
// optionally filtered.
func (tree *Tree) Walker(filter func(*Node) bool) <-chan *Node {
	ch := make(chan *Node, tree.NNodes())
	tree.Walk(ch, filter)
	close(ch)
	return ch
}

// Copy creates an independent copy of the tree.
func (tree *Tree) Copy() (newTree *Tree) {
	nNodes := tree.NNodes()
	newTree = &Tree{
		nNodes:    nNodes,
		nodes:     make([]*Node, nNodes),
		nodeOrder: make([]*Node, len(tree.NodeOrder())),
	}

	for i, node := range tree.Nodes() {
		if i != node.Id {
			panic("node id mismatch")
		}
		newTree.nodes[i] = node.Copy()
	}

	// Rewire node/parent connections.
	for i, node := range tree.Nodes() {
		newNode := newTree.nodes[i]
		for _, child := range node.childNodes {
			newChild := newTree.nodes[child.Id]
			newNode.AddChild(newChild)
		}
	}

	for i, node := range tree.NodeOrder() {
		newTree.nodeOrder[i] = newTree.nodes[node.Id]
	}

	newTree.Node = newTree.nodes[0]

	return
}

// NodeOrder returns internal nodes in post-order: every node comes
// after all of its children. Leaves are not included.
func (tree *Tree) NodeOrder() []*Node {
	if tree.nodeOrder == nil {
		tree.nodeOrder = make([]*Node, 0, tree.NNodes())
		computed := make(map[*Node]bool, tree.NNodes())
		awaiting := make(chan *Node, tree.NNodes()*2)
		for node := range tree.Terminals() {
			computed[node] = true
			awaiting <- node.Parent
		}

		for node := range awaiting {
			if node == nil {
				break
			}
			if computed[node] {
				continue
			}
			allComputed := true
			for _, childNode := range node.ChildNodes() {
				if !computed[childNode] {
					allComputed = false
					break
				}
			}
			if !allComputed {
				awaiting <- node
			} else {
				tree.nodeOrder = append(tree.nodeOrder, node)
				computed[node] = true
				awaiting <- node.Parent
			}
		}
	}
	return tree.nodeOrder
}

// ReverseLevelOrder returns all nodes sorted by depth, deepest first.
// Children always precede their parents.
func (tree *Tree) ReverseLevelOrder() []*Node {
	depth := make(map[*Node]int, tree.NNodes())
	nodes := make([]*Node, 0, tree.NNodes())
	for node := range tree.Walker(nil) {
		if node.Parent != nil {
			depth[node] = depth[node.Parent] + 1
		}
		nodes = append(nodes, node)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return depth[nodes[i]] > depth[nodes[j]]
	})
	return nodes
}

// LongestBranch returns the maximum branch length.
func (tree *Tree) LongestBranch() (l float64) {
	for node := range tree.Walker(nil) {
		if !node.IsRoot() && node.BranchLength > l {
			l = node.BranchLength
		}
	}
	return
}

// BranchLengths returns the sorted distinct branch lengths of all
// non-root nodes.
func (tree *Tree) BranchLengths() []float64 {
	seen := make(map[float64]bool)
	var res []float64
	for node := range tree.Walker(nil) {
		if node.IsRoot() || seen[node.BranchLength] {
			continue
		}
		seen[node.BranchLength] = true
		res = append(res, node.BranchLength)
	}
	sort.Float64s(res)
	return res
}

// MaxClass returns the largest rate class index.
func (tree *Tree) MaxClass() (cl int) {
	for node := range tree.Walker(nil) {
		if node.Class > cl {
			cl = node.Class
		}
	}
	return
}

// SetClassesFromRateTree assigns per-branch rate classes from a second
// tree of identical topology whose branch length positions carry
// 1-based rate indices. Classes are stored 0-based.
func (tree *Tree) SetClassesFromRateTree(rates *Tree) error {
	if tree.NNodes() != rates.NNodes() {
		return fmt.Errorf("rate tree has %d nodes, species tree has %d",
			rates.NNodes(), tree.NNodes())
	}
	rNodes := rates.Nodes()
	for i, node := range tree.Nodes() {
		rNode := rNodes[i]
		if len(node.childNodes) != len(rNode.childNodes) ||
			(node.IsTerminal() && node.Name != rNode.Name) {
			return errors.New("rate tree topology does not match species tree")
		}
		if node.IsRoot() {
			continue
		}
		idx := int(math.Round(rNode.BranchLength))
		if idx < 1 || math.Abs(rNode.BranchLength-float64(idx)) > 1e-9 {
			return fmt.Errorf("invalid rate index %v on branch to %s",
				rNode.BranchLength, rNode.Name)
		}
		node.Class = idx - 1
	}
	return nil
}

// Validate checks that the tree can be used for inference.
func (tree *Tree) Validate() error {
	if tree.NLeaves() < 2 {
		return errors.New("tree must have at least two leaves")
	}
	for node := range tree.Walker(nil) {
		if node.IsRoot() {
			continue
		}
		if node.BranchLength < 0 {
			return fmt.Errorf("negative branch length on branch to %s", node.Name)
		}
	}
	return nil
}

// Node is a tree node.
type Node struct {
	Name         string
	BranchLength float64
	Parent       *Node
	childNodes   []*Node
	Id           int
	LeafId       int
	Class        int
}

// NewNode creates a new node with a given parent.
func NewNode(parent *Node, nodeId int) (node *Node) {
	node = &Node{Parent: parent, Id: nodeId}
	return
}

// Copy creates a copy of the node with empty parent and children.
func (node *Node) Copy() *Node {
	return &Node{
		Name:         node.Name,
		BranchLength: node.BranchLength,
		childNodes:   make([]*Node, 0, len(node.childNodes)),
		Id:           node.Id,
		LeafId:       node.LeafId,
		Class:        node.Class,
	}
}

// AddChild adds a child node.
func (node *Node) AddChild(subNode *Node) {
	subNode.Parent = node
	node.childNodes = append(node.childNodes, subNode)
}

func (node *Node) String() (s string) {
	if node.IsTerminal() {
		return fmt.Sprintf("%s:%0.6f", node.Name, node.BranchLength)
	}
	s += "("
	for i, child := range node.childNodes {
		s += child.String()
		if i != len(node.childNodes)-1 {
			s += ","
		}
	}
	s += fmt.Sprintf("):%0.6f", node.BranchLength)
	if node.IsRoot() {
		s += ";"
	}
	return s
}

// LongString returns an extended string representation of a node.
func (node *Node) LongString() (s string) {
	s = "<"
	if node.Parent == nil {
		s += "root, "
	}
	if node.Name != "" {
		s += "name=" + node.Name + ", "
	}
	s += fmt.Sprintf("Id=%v, BranchLength=%v", node.Id, node.BranchLength)
	if node.IsTerminal() {
		s += fmt.Sprintf(", LeafId=%v", node.LeafId)
	}
	if node.Class != 0 {
		s += fmt.Sprintf(", Class=%v", node.Class)
	}
	s += ">"
	return
}

// FullString returns an indented representation of the subtree.
func (node *Node) FullString() string {
	return strings.TrimSpace(node.prefixString(""))
}

func (node *Node) prefixString(prefix string) (s string) {
	s = prefix + node.LongString() + "\n"
	for _, node := range node.childNodes {
		s += node.prefixString(prefix + "    ")
	}
	return
}

// CladeName returns the node name for leaves and a synthetic name
// derived from the sorted descendant leaf names for internal nodes, so
// identical subtrees get identical names.
func (node *Node) CladeName() string {
	if node.IsTerminal() {
		return node.Name
	}
	var leaves []string
	ch := make(chan *Node, node.NSubNodes())
	node.Walk(ch, func(n *Node) bool {
		return n.IsTerminal()
	})
	close(ch)
	for leaf := range ch {
		leaves = append(leaves, leaf.Name)
	}
	sort.Strings(leaves)
	return strings.Join(leaves, "_")
}

// ChildNodes returns the direct children of a node.
func (node *Node) ChildNodes() []*Node {
	return node.childNodes
}

// Walk traverses the subtree in pre-order sending nodes matching the
// filter to the channel.
func (node *Node) Walk(ch chan *Node, filter func(*Node) bool) {
	if filter == nil || filter(node) {
		ch <- node
	}
	for _, node := range node.childNodes {
		node.Walk(ch, filter)
	}
}

// NSubNodes returns the number of nodes in the subtree including the
// node itself.
func (node *Node) NSubNodes() (size int) {
	for _, node := range node.childNodes {
		size += node.NSubNodes()
	}
	return size + 1
}

// IsRoot returns true if the node has no parent.
func (node *Node) IsRoot() bool {
	return node.Parent == nil
}

// IsTerminal returns true if the node is a leaf.
func (node *Node) IsTerminal() bool {
	return len(node.childNodes) == 0
}

// IsSpecial returns true for Newick syntax characters.
func IsSpecial(c rune) bool {
	switch c {
	case '(', ')', ':', '#', ';', ',':
		return true
	}
	return false
}

// NewickSplit is a bufio.SplitFunc returning Newick tokens.
func NewickSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	// Skip leading spaces; and return 1-char tokens.
	for width := 0; start < len(data); start += width {
		var r rune
		r, width = utf8.DecodeRune(data[start:])
		if IsSpecial(r) {
			return start + width, data[start : start+width], nil
		}
		if !unicode.IsSpace(r) {
			break
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// Scan until space or special character.
	for width, i := 0, start; i < len(data); i += width {
		var r rune
		r, width = utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) || IsSpecial(r) {
			return i, data[start:i], nil
		}
	}
	// If we're at EOF, we have a final, non-empty, non-terminated word. Return it.
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	// Request more data.
	return 0, nil, nil
}

// ParseNewick parses a Newick tree from a reader. Rate classes can be
// given inline with a #n suffix.
func ParseNewick(rd io.Reader) (tree *Tree, err error) {
	scanner := bufio.NewScanner(rd)

	scanner.Split(NewickSplit)

	nodeId := 0

	node := NewNode(nil, nodeId)
	tree = &Tree{Node: node}
	nodeId++

	mode := NORMAL

loop:
	for scanner.Scan() {
		text := scanner.Text()
		switch text {
		case "(":
			subNode := NewNode(nil, nodeId)
			nodeId++
			if node != nil {
				node.AddChild(subNode)
			}
			node = subNode

		case ",":
			if node.Parent == nil {
				return nil, errors.New("top level comma mismatch")
			}
			subNode := NewNode(nil, nodeId)
			nodeId++

			node.Parent.AddChild(subNode)
			node = subNode

		case ")":
			if node.Parent == nil {
				return nil, errors.New("brackets mismatch")
			}
			node = node.Parent
		case "#":
			mode = CLASS
		case ":":
			mode = LENGTH
		case ";":
			break loop
		default:
			switch mode {
			case LENGTH:
				l, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, err
				}
				node.BranchLength = l
				mode = NORMAL
			case CLASS:
				cl, err := strconv.ParseInt(text, 0, 0)
				if err != nil {
					return nil, err
				}
				node.Class = int(cl)
				mode = NORMAL
			default:
				node.Name = text
			}
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	if node != tree.Node {
		return nil, errors.New("brackets mismatch")
	}

	// Number leaves in traversal order.
	leafId := 0
	for leaf := range tree.Terminals() {
		leaf.LeafId = leafId
		leafId++
	}

	return
}
