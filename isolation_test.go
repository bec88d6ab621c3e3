package tiercache

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache/codec"
)

type countingCopier struct {
	writes, reads int
}

func (c *countingCopier) CopyForWrite(e Entry[[]int]) (Entry[[]int], error) {
	c.writes++
	e.Value = slices.Clone(e.Value)
	return e, nil
}

func (c *countingCopier) CopyForRead(e Entry[[]int]) (Entry[[]int], error) {
	c.reads++
	e.Value = slices.Clone(e.Value)
	return e, nil
}

func TestIsolationModes(t *testing.T) {
	in := Entry[[]int]{Key: "k", Value: []int{1}}

	cases := []struct {
		name                 string
		onRead, onWrite      bool
		readCopies, wrCopies [2]int // {writes, reads} per direction
	}{
		{"none", false, false, [2]int{0, 0}, [2]int{0, 0}},
		{"both", true, true, [2]int{0, 1}, [2]int{1, 0}},
		{"read only", true, false, [2]int{1, 1}, [2]int{0, 0}},
		{"write only", false, true, [2]int{0, 0}, [2]int{1, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &countingCopier{}
			iso, err := NewIsolation[[]int](tc.onRead, tc.onWrite, c)
			require.NoError(t, err)
			assert.Equal(t, tc.onRead || tc.onWrite, iso.Active())

			_, err = iso.ForRead(in)
			require.NoError(t, err)
			assert.Equal(t, tc.readCopies, [2]int{c.writes, c.reads})

			*c = countingCopier{}
			_, err = iso.ForWrite(in)
			require.NoError(t, err)
			assert.Equal(t, tc.wrCopies, [2]int{c.writes, c.reads})
		})
	}
}

func TestIsolationRequiresCopier(t *testing.T) {
	_, err := NewIsolation[int](true, false, nil)
	assert.ErrorIs(t, err, ErrNoCopier)

	iso, err := NewIsolation[int](false, false, nil)
	require.NoError(t, err)
	out, err := iso.ForWrite(Entry[int]{Key: "k", Value: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Value)
}

type point struct{ X, Y int }

func TestCodecCopierDoesNotAlias(t *testing.T) {
	c := CodecCopier[map[string]point]{Codec: codec.JSON[map[string]point]{}}
	in := Entry[map[string]point]{Key: "k", Value: map[string]point{"a": {1, 2}}}

	out, err := c.CopyForWrite(in)
	require.NoError(t, err)
	in.Value["a"] = point{9, 9}
	assert.Equal(t, point{1, 2}, out.Value["a"])
	assert.Equal(t, "k", out.Key)
}

type failingCodec struct{}

func (failingCodec) Encode(int) ([]byte, error) { return nil, errors.New("encode") }
func (failingCodec) Decode([]byte) (int, error) { return 0, errors.New("decode") }

func TestComparators(t *testing.T) {
	a := Entry[[]int]{Value: []int{1, 2}}
	b := Entry[[]int]{Value: []int{1, 2}}
	c := Entry[[]int]{Value: []int{2}}

	assert.True(t, ValueEqual(a, b))
	assert.False(t, ValueEqual(a, c))

	eq := CodecEqual[[]int](codec.JSON[[]int]{})
	assert.True(t, eq(a, b))
	assert.False(t, eq(a, c))

	broken := CodecEqual[int](failingCodec{})
	assert.False(t, broken(Entry[int]{}, Entry[int]{}))
}
