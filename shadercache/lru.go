package shadercache

// lruNode is a node of the recency list.
type lruNode struct {
	key        string
	prev, next *lruNode
}

// lruList is a doubly linked recency list. The front holds the most recently
// used key. It is not synchronized; the owning shard's mutex guards it.
type lruList struct {
	root lruNode // sentinel: root.next is the front, root.prev the back
	len  int
}

func newLRUList() *lruList {
	l := &lruList{}
	l.root.next = &l.root
	l.root.prev = &l.root
	return l
}

// Len returns the number of keys in the list.
func (l *lruList) Len() int { return l.len }

// PushFront inserts key at the front and returns its node.
func (l *lruList) PushFront(key string) *lruNode {
	n := &lruNode{key: key}
	l.insertFront(n)
	l.len++
	return n
}

func (l *lruList) insertFront(n *lruNode) {
	n.prev = &l.root
	n.next = l.root.next
	l.root.next.prev = n
	l.root.next = n
}

func (l *lruList) unlink(n *lruNode) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
}

// MoveToFront marks n as most recently used.
func (l *lruList) MoveToFront(n *lruNode) {
	if n == nil || n.next == nil || l.root.next == n {
		return
	}
	l.unlink(n)
	l.insertFront(n)
}

// Remove drops n from the list.
func (l *lruList) Remove(n *lruNode) {
	if n == nil || n.next == nil {
		return
	}
	l.unlink(n)
	l.len--
}

// Oldest returns the least recently used key without removing it.
func (l *lruList) Oldest() (string, bool) {
	if l.len == 0 {
		return "", false
	}
	return l.root.prev.key, true
}

// RemoveOldest drops the least recently used key and returns it.
func (l *lruList) RemoveOldest() (string, bool) {
	if l.len == 0 {
		return "", false
	}
	n := l.root.prev
	l.unlink(n)
	l.len--
	return n.key, true
}

// Clear empties the list.
func (l *lruList) Clear() {
	l.root.next = &l.root
	l.root.prev = &l.root
	l.len = 0
}
