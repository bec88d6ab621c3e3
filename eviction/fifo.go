package eviction

import "container/list"

// fifo evicts in insertion order; reads do not matter.
type fifo struct {
	queue *list.List
	nodes map[string]*list.Element
}

func newFIFO() *fifo {
	return &fifo{queue: list.New(), nodes: make(map[string]*list.Element)}
}

func (f *fifo) Kind() Kind { return FIFO }

func (f *fifo) Touch(string) {}

func (f *fifo) Add(k string) {
	if _, ok := f.nodes[k]; ok {
		return
	}
	f.nodes[k] = f.queue.PushBack(k)
}

func (f *fifo) Remove(k string) {
	if n, ok := f.nodes[k]; ok {
		f.queue.Remove(n)
		delete(f.nodes, k)
	}
}

func (f *fifo) Victim() (string, bool) {
	n := f.queue.Front()
	if n == nil {
		return "", false
	}
	k := f.queue.Remove(n).(string)
	delete(f.nodes, k)
	return k, true
}

func (f *fifo) Len() int { return len(f.nodes) }
