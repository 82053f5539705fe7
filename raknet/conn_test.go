package raknet

import (
	"bytes"
	"math/rand"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost captures outgoing datagrams instead of hitting a socket.
type fakeHost struct {
	mu  sync.Mutex
	out [][]byte
}

func (h *fakeHost) writeTo(data []byte, _ netip.AddrPort) {
	h.mu.Lock()
	h.out = append(h.out, append([]byte(nil), data...))
	h.mu.Unlock()
}

func (h *fakeHost) removeConn(*Conn) {}
func (h *fakeHost) queueAccept(*Conn) {}

func (h *fakeHost) datagrams() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.out))
	copy(out, h.out)
	return out
}

func testConn(t *testing.T) (*Conn, *fakeHost) {
	t.Helper()
	h := &fakeHost{}
	c := newConn(h, netip.MustParseAddrPort("127.0.0.1:19132"), 1, 1400)
	t.Cleanup(func() { c.closeWith(nil, false) })
	return c, h
}

// readDelivered drains one payload from the conn with a deadline.
func readDelivered(t *testing.T, c *Conn) []byte {
	t.Helper()
	select {
	case pkt := <-c.pkts:
		return pkt
	case <-time.After(2 * time.Second):
		t.Fatal("no payload delivered")
		return nil
	}
}

// makeOrderedFrameSet builds one frameset holding one
// reliable-ordered frame.
func makeOrderedFrameSet(seq, relIndex, ordIndex uint32, payload []byte) []byte {
	fs := &frameSet{seq: seq, frames: []*frame{{
		reliability:   ReliableOrdered,
		reliableIndex: relIndex,
		orderedIndex:  ordIndex,
		payload:       payload,
	}}}
	return fs.encode(nil)
}

func TestOrderedDeliveryPermutedAndDuplicated(t *testing.T) {
	c, _ := testConn(t)

	const n = 32
	payload := func(i int) []byte { return []byte{0xfe, byte(i)} }

	order := rand.New(rand.NewSource(7)).Perm(n)
	// Feed every frame twice in a random permutation.
	var feed []int
	feed = append(feed, order...)
	feed = append(feed, order...)

	for _, i := range feed {
		data := makeOrderedFrameSet(uint32(i), uint32(i), uint32(i), payload(i))
		require.NoError(t, c.processDatagram(data))
	}

	// Delivery must be the original send order with no duplicates.
	for i := 0; i < n; i++ {
		assert.Equal(t, payload(i), readDelivered(t, c))
	}
	select {
	case extra := <-c.pkts:
		t.Fatalf("duplicate delivery: %x", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGapTriggersImmediateNack(t *testing.T) {
	c, h := testConn(t)

	require.NoError(t, c.processDatagram(makeOrderedFrameSet(0, 0, 0, []byte{0xfe, 0})))
	readDelivered(t, c)

	// Sequence 3 leaves 1 and 2 missing.
	require.NoError(t, c.processDatagram(makeOrderedFrameSet(3, 3, 3, []byte{0xfe, 3})))

	var nack []byte
	for _, d := range h.datagrams() {
		if d[0] == idNack {
			nack = d
		}
	}
	require.NotNil(t, nack, "no nack emitted on gap")
	records, err := decodeAcks(nack)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ackRecord{1, 2}, records[0])
}

func TestReliableOrderedUnderLoss(t *testing.T) {
	c, _ := testConn(t)

	// First transmission: frames 1 and 3 are lost.
	for _, i := range []int{0, 2, 4} {
		require.NoError(t, c.processDatagram(makeOrderedFrameSet(uint32(i), uint32(i), uint32(i), []byte{0xfe, byte(i)})))
	}
	// Retransmission after nack arrives under fresh frameset
	// sequence numbers but the original reliable/ordered indices.
	for _, i := range []int{1, 3} {
		require.NoError(t, c.processDatagram(makeOrderedFrameSet(uint32(5+i), uint32(i), uint32(i), []byte{0xfe, byte(i)})))
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, []byte{0xfe, byte(i)}, readDelivered(t, c))
	}
}

func TestDuplicateFrameSetDroppedSilently(t *testing.T) {
	c, _ := testConn(t)
	data := makeOrderedFrameSet(0, 0, 0, []byte{0xfe, 1})
	require.NoError(t, c.processDatagram(data))
	require.NoError(t, c.processDatagram(data))
	readDelivered(t, c)
	select {
	case <-c.pkts:
		t.Fatal("duplicate frameset delivered twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFragmentationReassemblyAnyOrder(t *testing.T) {
	c, _ := testConn(t)

	payload := make([]byte, 300_000)
	rand.New(rand.NewSource(3)).Read(payload)
	payload[0] = 0xfe

	const chunk = 1000
	count := (len(payload) + chunk - 1) / chunk
	frames := make([]*frame, 0, count)
	for i := 0; i < count; i++ {
		end := (i + 1) * chunk
		if end > len(payload) {
			end = len(payload)
		}
		frames = append(frames, &frame{
			reliability:   ReliableOrdered,
			reliableIndex: uint32(i),
			orderedIndex:  0,
			split:         true,
			splitCount:    uint32(count),
			splitID:       1,
			splitIndex:    uint32(i),
			payload:       payload[i*chunk : end],
		})
	}

	perm := rand.New(rand.NewSource(9)).Perm(count)
	for seq, i := range perm {
		fs := &frameSet{seq: uint32(seq), frames: []*frame{frames[i]}}
		require.NoError(t, c.processDatagram(fs.encode(nil)))
	}

	assert.True(t, bytes.Equal(payload, readDelivered(t, c)))
}

func TestSplitIndexOutOfRange(t *testing.T) {
	c, _ := testConn(t)
	fs := &frameSet{seq: 0, frames: []*frame{{
		reliability: Reliable,
		split:       true,
		splitCount:  3,
		splitID:     1,
		splitIndex:  5,
		payload:     []byte{1},
	}}}
	require.NoError(t, c.processDatagram(fs.encode(nil)))
	// The bad fragment surfaces as a frame error, not a delivery.
	select {
	case err := <-c.errs:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected a frame error")
	}
}

func TestAckReleasesWindow(t *testing.T) {
	c, h := testConn(t)

	require.NoError(t, c.WritePacket([]byte{0xfe, 1}, ReliableOrdered, 0))

	c.mu.Lock()
	unacked := c.unacked
	c.mu.Unlock()
	assert.Equal(t, 1, unacked)

	// Find the frameset we just sent and ack its sequence number.
	var seq uint32
	found := false
	for _, d := range h.datagrams() {
		if d[0] >= idFrameSetMin && d[0] <= idFrameSetMax {
			fs, err := decodeFrameSet(d)
			require.NoError(t, err)
			seq = fs.seq
			found = true
		}
	}
	require.True(t, found)

	require.NoError(t, c.processDatagram(encodeAcks(idAck, []ackRecord{{seq, seq}}, nil)))

	c.mu.Lock()
	unacked = c.unacked
	c.mu.Unlock()
	assert.Zero(t, unacked)
}

func TestNackTriggersRetransmission(t *testing.T) {
	c, h := testConn(t)

	require.NoError(t, c.WritePacket([]byte{0xfe, 42}, ReliableOrdered, 0))

	var first *frameSet
	for _, d := range h.datagrams() {
		if d[0] >= idFrameSetMin && d[0] <= idFrameSetMax {
			fs, err := decodeFrameSet(d)
			require.NoError(t, err)
			first = fs
		}
	}
	require.NotNil(t, first)

	require.NoError(t, c.processDatagram(encodeAcks(idNack, []ackRecord{{first.seq, first.seq}}, nil)))

	// The retransmission reuses the reliable index under a new
	// frameset sequence number.
	var resent *frameSet
	for _, d := range h.datagrams() {
		if d[0] >= idFrameSetMin && d[0] <= idFrameSetMax {
			fs, err := decodeFrameSet(d)
			require.NoError(t, err)
			if fs.seq != first.seq {
				resent = fs
			}
		}
	}
	require.NotNil(t, resent, "no retransmission observed")
	require.Len(t, resent.frames, 1)
	assert.Equal(t, first.frames[0].reliableIndex, resent.frames[0].reliableIndex)
	assert.Equal(t, first.frames[0].payload, resent.frames[0].payload)
}

func TestConnectedPingAnswered(t *testing.T) {
	c, h := testConn(t)

	fs := &frameSet{seq: 0, frames: []*frame{{
		reliability: Unreliable,
		payload:     encodeConnectedPing(12345),
	}}}
	require.NoError(t, c.processDatagram(fs.encode(nil)))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, d := range h.datagrams() {
			if d[0] >= idFrameSetMin && d[0] <= idFrameSetMax {
				fs, err := decodeFrameSet(d)
				require.NoError(t, err)
				for _, f := range fs.frames {
					if len(f.payload) > 0 && f.payload[0] == idConnectedPong {
						ping, _, err := decodeConnectedPong(f.payload)
						require.NoError(t, err)
						assert.Equal(t, int64(12345), ping)
						return
					}
				}
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no connected pong sent")
}
