package eviction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(p Policy) []string {
	var out []string
	for {
		k, ok := p.Victim()
		if !ok {
			return out
		}
		out = append(out, k)
	}
}

func TestLRUEvictsLeastRecentlyTouched(t *testing.T) {
	p, err := New(LRU)
	require.NoError(t, err)
	p.Add("a")
	p.Add("b")
	p.Add("c")
	p.Touch("a")

	assert.Equal(t, []string{"b", "c", "a"}, drain(p))
	assert.Equal(t, 0, p.Len())
}

func TestFIFOIgnoresReads(t *testing.T) {
	p, err := New(FIFO)
	require.NoError(t, err)
	p.Add("a")
	p.Add("b")
	p.Touch("a")
	p.Add("a") // already tracked

	assert.Equal(t, []string{"a", "b"}, drain(p))
}

func TestLFUEvictsLeastFrequent(t *testing.T) {
	p, err := New(LFU)
	require.NoError(t, err)
	p.Add("a")
	p.Add("b")
	p.Add("c")
	p.Touch("a")
	p.Touch("a")
	p.Touch("c")

	assert.Equal(t, []string{"b", "c", "a"}, drain(p))
}

func TestLFURemoveKeepsMinimumConsistent(t *testing.T) {
	p, err := New(LFU)
	require.NoError(t, err)
	p.Add("a")
	p.Add("b")
	p.Touch("b")
	p.Remove("a")

	k, ok := p.Victim()
	require.True(t, ok)
	assert.Equal(t, "b", k)
	_, ok = p.Victim()
	assert.False(t, ok)
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	for _, k := range []Kind{LRU, LFU, FIFO} {
		p, err := New(k)
		require.NoError(t, err)
		p.Remove("missing")
		p.Touch("missing")
		assert.Equal(t, 0, p.Len(), k.String())
		assert.Equal(t, k, p.Kind())
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" lfu ")
	require.NoError(t, err)
	assert.Equal(t, LFU, k)

	_, err = ParseKind("random")
	assert.Error(t, err)

	_, err = New(Kind("CLOCK"))
	assert.Error(t, err)
}
