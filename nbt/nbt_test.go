package nbt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *Compound {
	inner := NewCompound()
	inner.Set("b", Byte(-3))
	inner.Set("a", Short(1234))

	c := NewCompound()
	c.Set("name", String("minecraft:stone"))
	c.Set("int", Int(-42))
	c.Set("long", Long(1<<40))
	c.Set("float", Float(1.5))
	c.Set("double", Double(-2.25))
	c.Set("bytes", ByteArray{1, 2, 3})
	c.Set("ints", IntArray{-1, 0, 1})
	c.Set("longs", LongArray{1 << 33, -5})
	c.Set("list", List{Elem: TagString, Tags: []Tag{String("x"), String("y")}})
	c.Set("nested", inner)
	return c
}

func TestRoundTripBothVariants(t *testing.T) {
	for _, enc := range []Encoding{LittleEndian, Network} {
		data := Marshal("root", sampleTree(), enc)

		name, c, n, err := Unmarshal(data, enc)
		require.NoError(t, err)
		assert.Equal(t, "root", name)
		assert.Equal(t, len(data), n)
		assert.True(t, sampleTree().Equal(c))

		// Decode then re-encode reproduces the input byte for byte;
		// compound key order is preserved as parsed.
		again := Marshal(name, c, enc)
		assert.Equal(t, data, again)
	}
}

func TestVariantsDiffer(t *testing.T) {
	c := NewCompound()
	c.Set("v", Int(18100737))
	le := Marshal("", c, LittleEndian)
	net := Marshal("", c, Network)
	assert.NotEqual(t, le, net)
}

func TestNetworkIntIsZigZagVarint(t *testing.T) {
	c := NewCompound()
	c.Set("v", Int(-1))
	data := Marshal("", c, Network)
	// 0x0a, name len 0, tag Int, key "v", then zigzag(-1) = 0x01,
	// then TAG_End.
	assert.Equal(t, []byte{0x0a, 0x00, 0x03, 0x01, 'v', 0x01, 0x00}, data)
}

func TestLittleEndianStringLengths(t *testing.T) {
	c := NewCompound()
	c.Set("k", String("ab"))
	data := Marshal("", c, LittleEndian)
	// root tag, u16le name length 0, TagString, u16le key length,
	// key, u16le value length, value, end.
	assert.Equal(t, []byte{0x0a, 0x00, 0x00, 0x08, 0x01, 0x00, 'k', 0x02, 0x00, 'a', 'b', 0x00}, data)
}

func TestUnknownTag(t *testing.T) {
	data := []byte{0x0a, 0x00, 0x00, 0x63, 0x01, 0x00, 'k'}
	_, _, _, err := Unmarshal(data, LittleEndian)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestUnterminatedCompound(t *testing.T) {
	data := Marshal("", sampleTree(), Network)
	_, _, _, err := Unmarshal(data[:len(data)-1], Network)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLengthOverflow(t *testing.T) {
	// A byte array claiming more bytes than the input holds.
	c := NewCompound()
	c.Set("a", ByteArray{1, 2, 3, 4, 5, 6, 7, 8})
	data := Marshal("", c, LittleEndian)
	_, _, _, err := Unmarshal(data[:len(data)-5], LittleEndian)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestListElementMismatch(t *testing.T) {
	// A list with element tag End but nonzero length is malformed.
	data := []byte{
		0x0a, 0x00, 0x00, // root compound, empty name
		0x09, 0x01, 0x00, 'l', // TagList "l"
		0x00,                   // element type End
		0x02, 0x00, 0x00, 0x00, // length 2
		0x00, // TAG_End
	}
	_, _, _, err := Unmarshal(data, LittleEndian)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEmptyListRoundTrip(t *testing.T) {
	c := NewCompound()
	c.Set("l", List{Elem: TagEnd})
	data := Marshal("", c, Network)
	_, got, _, err := Unmarshal(data, Network)
	require.NoError(t, err)
	assert.True(t, c.Equal(got))
}

func TestCompoundOrderPreserved(t *testing.T) {
	c := NewCompound()
	c.Set("zzz", Int(1))
	c.Set("aaa", Int(2))
	c.Set("mmm", Int(3))
	data := Marshal("", c, Network)
	_, got, _, err := Unmarshal(data, Network)
	require.NoError(t, err)
	assert.Equal(t, []string{"zzz", "aaa", "mmm"}, got.Keys())
}

func TestSortKeys(t *testing.T) {
	c := NewCompound()
	c.Set("b", Int(1))
	c.Set("a", Int(2))
	c.SortKeys()
	assert.Equal(t, []string{"a", "b"}, c.Keys())
}

func TestNestingDepthLimit(t *testing.T) {
	// maxDepth nested compounds overflow the limit.
	var data []byte
	for i := 0; i <= maxDepth+1; i++ {
		data = append(data, 0x0a, 0x00, 0x00)
	}
	_, _, _, err := Unmarshal(data, LittleEndian)
	assert.ErrorIs(t, err, ErrMalformed)
}
