package eviction

import "container/list"

// lru evicts the least recently touched key. Front of the list is the most recent.
type lru struct {
	order *list.List
	nodes map[string]*list.Element
}

func newLRU() *lru {
	return &lru{order: list.New(), nodes: make(map[string]*list.Element)}
}

func (l *lru) Kind() Kind { return LRU }

func (l *lru) Touch(k string) {
	if n, ok := l.nodes[k]; ok {
		l.order.MoveToFront(n)
	}
}

func (l *lru) Add(k string) {
	if _, ok := l.nodes[k]; ok {
		return
	}
	l.nodes[k] = l.order.PushFront(k)
}

func (l *lru) Remove(k string) {
	if n, ok := l.nodes[k]; ok {
		l.order.Remove(n)
		delete(l.nodes, k)
	}
}

func (l *lru) Victim() (string, bool) {
	n := l.order.Back()
	if n == nil {
		return "", false
	}
	k := l.order.Remove(n).(string)
	delete(l.nodes, k)
	return k, true
}

func (l *lru) Len() int { return len(l.nodes) }
