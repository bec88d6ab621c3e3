package eviction

import "container/list"

// lfu evicts the least frequently touched key. Ties go to the oldest key in
// the lowest frequency bucket.
type lfu struct {
	freq    map[string]int
	buckets map[int]*list.List
	nodes   map[string]*list.Element
	minFreq int
}

func newLFU() *lfu {
	return &lfu{
		freq:    make(map[string]int),
		buckets: make(map[int]*list.List),
		nodes:   make(map[string]*list.Element),
	}
}

func (l *lfu) Kind() Kind { return LFU }

func (l *lfu) Touch(k string) {
	f, ok := l.freq[k]
	if !ok {
		return
	}
	l.unlink(k, f)
	if f == l.minFreq && l.buckets[f] == nil {
		l.minFreq = f + 1
	}
	l.link(k, f+1)
}

func (l *lfu) Add(k string) {
	if _, ok := l.freq[k]; ok {
		return
	}
	l.link(k, 1)
	l.minFreq = 1
}

func (l *lfu) Remove(k string) {
	f, ok := l.freq[k]
	if !ok {
		return
	}
	l.unlink(k, f)
	delete(l.freq, k)
	if f == l.minFreq && l.buckets[f] == nil {
		l.recomputeMin()
	}
}

func (l *lfu) Victim() (string, bool) {
	if len(l.freq) == 0 {
		return "", false
	}
	b := l.buckets[l.minFreq]
	if b == nil {
		l.recomputeMin()
		b = l.buckets[l.minFreq]
	}
	k := b.Front().Value.(string)
	l.Remove(k)
	return k, true
}

func (l *lfu) Len() int { return len(l.freq) }

func (l *lfu) link(k string, f int) {
	b := l.buckets[f]
	if b == nil {
		b = list.New()
		l.buckets[f] = b
	}
	l.nodes[k] = b.PushBack(k)
	l.freq[k] = f
}

func (l *lfu) unlink(k string, f int) {
	b := l.buckets[f]
	b.Remove(l.nodes[k])
	delete(l.nodes, k)
	if b.Len() == 0 {
		delete(l.buckets, f)
	}
}

func (l *lfu) recomputeMin() {
	l.minFreq = 0
	for f := range l.buckets {
		if l.minFreq == 0 || f < l.minFreq {
			l.minFreq = f
		}
	}
}
