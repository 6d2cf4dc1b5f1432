package repository

import (
	"hash/fnv"
)

// Score index: a treap ordered like the leaderboard, score key DESC then
// player id ASC, so an in-order walk yields best to worst. Priorities come
// from a hash of the player id, which keeps the tree balanced in expectation
// regardless of the score distribution.

type node struct {
	id    string
	key   int64
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

// less returns true if (aKey, aID) ranks before (bKey, bID).
func less(aKey int64, aID string, bKey int64, bID string) bool {
	if aKey != bKey {
		return aKey > bKey
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func priority(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func insert(n *node, id string, key int64) *node {
	if n == nil {
		return &node{id: id, key: key, prio: priority(id), size: 1}
	}
	if less(key, id, n.key, n.id) {
		n.left = insert(n.left, id, key)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, key)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, key int64) *node {
	if n == nil {
		return nil
	}
	if key == n.key && id == n.id {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, key)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, key)
		}
	} else if less(key, id, n.key, n.id) {
		n.left = deleteNode(n.left, id, key)
	} else {
		n.right = deleteNode(n.right, id, key)
	}
	fix(n)
	return n
}

// walk visits ids in leaderboard order (or reversed) until visit returns false.
func walk(n *node, reverse bool, visit func(id string) bool) bool {
	if n == nil {
		return true
	}
	first, second := n.left, n.right
	if reverse {
		first, second = n.right, n.left
	}
	if !walk(first, reverse, visit) {
		return false
	}
	if !visit(n.id) {
		return false
	}
	return walk(second, reverse, visit)
}

// walkFrom is walk after skipping the first skip ids. Whole subtrees are
// skipped by size, so reaching the offset costs O(log N).
func walkFrom(n *node, reverse bool, skip int, visit func(id string) bool) bool {
	if n == nil {
		return true
	}
	first, second := n.left, n.right
	if reverse {
		first, second = n.right, n.left
	}
	if skip >= nsize(first) {
		skip -= nsize(first)
	} else {
		if !walkFrom(first, reverse, skip, visit) {
			return false
		}
		skip = 0
	}
	if skip > 0 {
		return walkFrom(second, reverse, skip-1, visit)
	}
	if !visit(n.id) {
		return false
	}
	return walkFrom(second, reverse, 0, visit)
}
