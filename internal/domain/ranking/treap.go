package ranking

import (
	"hash/fnv"
	"math"
)

// Order-statistic treap keyed by (value ASC, id ASC). Each node tracks its
// subtree size so the number of values strictly below a probe is O(log n).

// valueScale fixes values to six decimals so float noise never splits a tie.
const valueScale = 1_000_000

type fixed int64

func toFixed(x float64) fixed {
	if math.IsNaN(x) {
		return 0
	}
	scaled := math.Round(x * valueScale)
	if scaled > math.MaxInt64 {
		return fixed(math.MaxInt64)
	}
	if scaled < math.MinInt64 {
		return fixed(math.MinInt64)
	}
	return fixed(scaled)
}

type node struct {
	id    string
	value fixed
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aValue fixed, aID string, bValue fixed, bID string) bool {
	if aValue != bValue {
		return aValue < bValue
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

// priority hashes the id so the tree shape is deterministic but balanced.
func priority(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func insert(n *node, id string, value fixed) *node {
	if n == nil {
		return &node{id: id, value: value, prio: priority(id), size: 1}
	}
	if less(value, id, n.value, n.id) {
		n.left = insert(n.left, id, value)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, value)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// countBelow returns how many nodes hold a value strictly lower than v.
func countBelow(n *node, v fixed) int {
	count := 0
	for n != nil {
		if n.value < v {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// Index is a population of values for one ranking dimension.
type Index struct {
	root *node
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{}
}

// Insert adds an entity's value. Ids are expected to be unique per index.
func (ix *Index) Insert(id string, value float64) {
	ix.root = insert(ix.root, id, toFixed(value))
}

// Len is the population size.
func (ix *Index) Len() int {
	return nsize(ix.root)
}

// CountBelow reports the number of values strictly lower than value.
func (ix *Index) CountBelow(value float64) int {
	return countBelow(ix.root, toFixed(value))
}

// Percentile is 100 * (#strictly lower) / (N - 1), rounded to two decimals.
// It is undefined, and nil, for a population of one or none.
func (ix *Index) Percentile(value float64) *float64 {
	n := ix.Len()
	if n <= 1 {
		return nil
	}
	p := math.Round(10000*float64(ix.CountBelow(value))/float64(n-1)) / 100
	return &p
}
