// Package results models the output of one simulation run: an ordered list of
// global scalars and a two-level tree of local series.
//
// A Tree is built once by a decoder or a simulator adapter and is read-only
// afterward. It is shared by every view of the same input fingerprint, so
// accessors hand out copies of numeric slices rather than the backing arrays.
package results

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned when a series or sub-series name is absent.
	ErrKeyNotFound = errors.New("key not found")

	// ErrNotLeaf is returned when a leaf was expected but a branch was found.
	ErrNotLeaf = errors.New("series is a branch, a sub-series is required")

	// ErrNotBranch is returned when a sub-series was requested from a leaf.
	ErrNotBranch = errors.New("series has no sub-series")
)

// Node is either a *Leaf or a *Branch.
type Node interface {
	node()
}

// Leaf holds a numeric value with its units. The value is a scalar, a 1-D
// sequence (one cell across positions), or a 2-D matrix (cells × positions).
type Leaf struct {
	Units string
	dims  int
	rows  [][]float64
}

func (*Leaf) node() {}

// NewScalar creates a zero-dimensional leaf.
func NewScalar(v float64, units string) *Leaf {
	return &Leaf{Units: units, dims: 0, rows: [][]float64{{v}}}
}

// NewVector creates a one-dimensional leaf. The slice is copied.
func NewVector(v []float64, units string) *Leaf {
	return &Leaf{Units: units, dims: 1, rows: [][]float64{cloneFloats(v)}}
}

// NewMatrix creates a two-dimensional leaf with one row per cell. Rows are copied.
func NewMatrix(m [][]float64, units string) *Leaf {
	rows := make([][]float64, len(m))
	for i, r := range m {
		rows[i] = cloneFloats(r)
	}
	return &Leaf{Units: units, dims: 2, rows: rows}
}

// Dims returns 0 for scalars, 1 for sequences and 2 for matrices.
func (l *Leaf) Dims() int {
	return l.dims
}

// Scalar returns the first value of the leaf, or 0 for an empty leaf.
func (l *Leaf) Scalar() float64 {
	if len(l.rows) == 0 || len(l.rows[0]) == 0 {
		return 0
	}
	return l.rows[0][0]
}

// Vector returns the values of a scalar or 1-D leaf. A matrix is flattened
// row by row.
func (l *Leaf) Vector() []float64 {
	if len(l.rows) == 0 {
		return []float64{}
	}
	if l.dims < 2 {
		return cloneFloats(l.rows[0])
	}
	var out []float64
	for _, r := range l.rows {
		out = append(out, r...)
	}
	return out
}

// Rows returns the leaf as cells × positions. Scalars and sequences are a
// single row.
func (l *Leaf) Rows() [][]float64 {
	out := make([][]float64, len(l.rows))
	for i, r := range l.rows {
		out[i] = cloneFloats(r)
	}
	return out
}

// Branch maps sub-series names to leaves, preserving insertion order.
type Branch struct {
	keys   []string
	leaves map[string]*Leaf
}

func (*Branch) node() {}

// NewBranch creates an empty branch.
func NewBranch() *Branch {
	return &Branch{leaves: make(map[string]*Leaf)}
}

// Set adds or replaces a sub-series. Only valid while the branch is being built.
func (b *Branch) Set(name string, leaf *Leaf) {
	if _, exists := b.leaves[name]; !exists {
		b.keys = append(b.keys, name)
	}
	b.leaves[name] = leaf
}

// Keys returns sub-series names in insertion order.
func (b *Branch) Keys() []string {
	return append([]string(nil), b.keys...)
}

// Leaf returns the named sub-series.
func (b *Branch) Leaf(name string) (*Leaf, bool) {
	l, ok := b.leaves[name]
	return l, ok
}

// Len returns the number of sub-series.
func (b *Branch) Len() int {
	return len(b.keys)
}

// Tree maps series names to nodes, preserving production order.
type Tree struct {
	keys  []string
	nodes map[string]Node
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{nodes: make(map[string]Node)}
}

// Set adds or replaces a series. Only valid while the tree is being built;
// a tree handed to the cache must not be modified again.
func (t *Tree) Set(name string, n Node) {
	if _, exists := t.nodes[name]; !exists {
		t.keys = append(t.keys, name)
	}
	t.nodes[name] = n
}

// Keys returns series names in production order.
func (t *Tree) Keys() []string {
	return append([]string(nil), t.keys...)
}

// Node returns the named series.
func (t *Tree) Node(name string) (Node, bool) {
	n, ok := t.nodes[name]
	return n, ok
}

// Len returns the number of series.
func (t *Tree) Len() int {
	return len(t.keys)
}

// LeafAt returns the leaf stored directly under key.
func LeafAt(t *Tree, key string) (*Leaf, error) {
	n, ok := t.Node(key)
	if !ok {
		return nil, fmt.Errorf("series %q: %w", key, ErrKeyNotFound)
	}
	switch v := n.(type) {
	case *Leaf:
		return v, nil
	case *Branch:
		return nil, fmt.Errorf("series %q: %w", key, ErrNotLeaf)
	default:
		return nil, fmt.Errorf("series %q: unexpected node %T", key, n)
	}
}

// SubLeaf returns the leaf stored under key/subkey.
func SubLeaf(t *Tree, key, subkey string) (*Leaf, error) {
	n, ok := t.Node(key)
	if !ok {
		return nil, fmt.Errorf("series %q: %w", key, ErrKeyNotFound)
	}
	switch v := n.(type) {
	case *Branch:
		l, ok := v.Leaf(subkey)
		if !ok {
			return nil, fmt.Errorf("series %q - %q: %w", key, subkey, ErrKeyNotFound)
		}
		return l, nil
	case *Leaf:
		return nil, fmt.Errorf("series %q: %w", key, ErrNotBranch)
	default:
		return nil, fmt.Errorf("series %q: unexpected node %T", key, n)
	}
}

// Axis returns the coordinate sequence stored under key along with its units.
func Axis(t *Tree, key string) ([]float64, string, error) {
	l, err := LeafAt(t, key)
	if err != nil {
		return nil, "", err
	}
	if l.Dims() > 1 {
		return nil, "", fmt.Errorf("axis %q is %d-dimensional", key, l.Dims())
	}
	return l.Vector(), l.Units, nil
}

// IsBranch reports whether key addresses a branch, i.e. whether a second-level
// selector is needed. Absent keys are not branches.
func IsBranch(t *Tree, key string) bool {
	n, ok := t.Node(key)
	if !ok {
		return false
	}
	_, isBranch := n.(*Branch)
	return isBranch
}

// SubKeys returns the sub-series names of a branch, or nil for a leaf.
func SubKeys(t *Tree, key string) ([]string, error) {
	n, ok := t.Node(key)
	if !ok {
		return nil, fmt.Errorf("series %q: %w", key, ErrKeyNotFound)
	}
	if b, ok := n.(*Branch); ok {
		return b.Keys(), nil
	}
	return nil, nil
}

func cloneFloats(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return append([]float64(nil), v...)
}
