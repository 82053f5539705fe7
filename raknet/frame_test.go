package raknet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTripUnreliable(t *testing.T) {
	f := &frame{reliability: Unreliable, payload: []byte("hello")}
	buf := f.encode(nil)
	assert.Equal(t, f.encodedSize(), len(buf))

	got, err := decodeFrame(&frameReader{data: buf})
	require.NoError(t, err)
	assert.Equal(t, Unreliable, got.reliability)
	assert.Equal(t, []byte("hello"), got.payload)
	assert.False(t, got.split)
}

func TestFrameRoundTripReliableOrdered(t *testing.T) {
	f := &frame{
		reliability:   ReliableOrdered,
		reliableIndex: 42,
		orderedIndex:  7,
		orderChannel:  3,
		payload:       []byte("world"),
	}
	buf := f.encode(nil)
	got, err := decodeFrame(&frameReader{data: buf})
	require.NoError(t, err)
	assert.Equal(t, ReliableOrdered, got.reliability)
	assert.Equal(t, uint32(42), got.reliableIndex)
	assert.Equal(t, uint32(7), got.orderedIndex)
	assert.Equal(t, uint8(3), got.orderChannel)
	assert.Equal(t, []byte("world"), got.payload)
}

func TestFrameLengthIsInBits(t *testing.T) {
	f := &frame{reliability: Unreliable, payload: []byte{1, 2, 3}}
	buf := f.encode(nil)
	// flags, then u16be length in bits: 3 bytes = 24 bits.
	assert.Equal(t, byte(0), buf[1])
	assert.Equal(t, byte(24), buf[2])
}

func TestFrameRoundTripSplit(t *testing.T) {
	f := &frame{
		reliability:   Reliable,
		reliableIndex: 100,
		split:         true,
		splitCount:    3,
		splitID:       9,
		splitIndex:    1,
		payload:       []byte("frag"),
	}
	buf := f.encode(nil)
	got, err := decodeFrame(&frameReader{data: buf})
	require.NoError(t, err)
	require.True(t, got.split)
	assert.Equal(t, uint32(3), got.splitCount)
	assert.Equal(t, uint16(9), got.splitID)
	assert.Equal(t, uint32(1), got.splitIndex)
}

func TestFrameSetRoundTrip(t *testing.T) {
	fs := &frameSet{
		seq: 0x123456,
		frames: []*frame{
			{reliability: Unreliable, payload: []byte("a")},
			{reliability: ReliableOrdered, reliableIndex: 1, orderedIndex: 0, payload: []byte("bb")},
		},
	}
	buf := fs.encode(nil)
	assert.Equal(t, byte(0x84), buf[0])

	got, err := decodeFrameSet(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x123456), got.seq)
	require.Len(t, got.frames, 2)
	assert.Equal(t, []byte("a"), got.frames[0].payload)
	assert.Equal(t, []byte("bb"), got.frames[1].payload)
}

func TestFrameInvalidChannel(t *testing.T) {
	f := &frame{reliability: ReliableOrdered, orderChannel: ChannelCount, payload: []byte("x")}
	_, err := decodeFrame(&frameReader{data: f.encode(nil)})
	assert.Error(t, err)
}

func TestPackAckRecords(t *testing.T) {
	records := packAckRecords([]uint32{1, 2, 3, 5, 7, 8, 9})
	require.Len(t, records, 3)
	assert.Equal(t, ackRecord{1, 3}, records[0])
	assert.Equal(t, ackRecord{5, 5}, records[1])
	assert.Equal(t, ackRecord{7, 9}, records[2])

	// Unsorted, duplicated input collapses the same way.
	records = packAckRecords([]uint32{3, 1, 2, 2, 5})
	require.Len(t, records, 2)
	assert.Equal(t, ackRecord{1, 3}, records[0])
	assert.Equal(t, ackRecord{5, 5}, records[1])

	assert.Nil(t, packAckRecords(nil))
}

func TestAckWireRoundTrip(t *testing.T) {
	records := []ackRecord{{5, 5}, {10, 15}}
	buf := encodeAcks(idAck, records, nil)
	assert.Equal(t, byte(idAck), buf[0])
	// count u16be, then single flag + u24, then range flag + 2x u24.
	assert.Equal(t, []byte{0x00, 0x02, 0x01, 5, 0, 0, 0x00, 10, 0, 0, 15, 0, 0}, buf[1:])

	got, err := decodeAcks(buf)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestNackWire(t *testing.T) {
	buf := encodeAcks(idNack, []ackRecord{{0, 3}}, nil)
	assert.Equal(t, byte(idNack), buf[0])
	got, err := decodeAcks(buf)
	require.NoError(t, err)
	assert.Equal(t, []ackRecord{{0, 3}}, got)
}

func TestReliabilityAxes(t *testing.T) {
	assert.True(t, ReliableOrdered.Reliable())
	assert.True(t, ReliableOrdered.Ordered())
	assert.False(t, ReliableOrdered.Sequenced())
	assert.False(t, Unreliable.Reliable())
	assert.True(t, UnreliableSequenced.Sequenced())
	assert.True(t, ReliableSequenced.Reliable())
	assert.False(t, Reliability(8).valid())
}
