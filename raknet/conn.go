package raknet

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	initialBandwidth = 64 << 10 // bytes/s
	maxBandwidth     = 8 << 20
)

// connHost is the side-specific owner of a Conn: the Listener on
// the server, the dialer on the client.
type connHost interface {
	writeTo(data []byte, addr netip.AddrPort)
	removeConn(c *Conn)
	queueAccept(c *Conn)
}

// A Conn is one peer: it owns the peer's reliability, ordering and
// fragmentation state and delivers fully reassembled, in-order
// payloads through ReadPacket.
type Conn struct {
	host  connHost
	raddr netip.AddrPort
	guid  int64
	mtu   uint16

	in   chan []byte // raw datagrams, fed by the listener
	pkts chan []byte // assembled payloads, drained by ReadPacket
	errs chan error  // non-fatal processing errors

	connected chan struct{} // closed on new-incoming-connection
	closed    chan struct{} // closed exactly once
	closeOnce sync.Once
	err       error

	mu sync.Mutex
	// Sending.
	sendSeq    uint32
	relIndex   uint32
	seqIndex   [ChannelCount]uint32
	ordIndex   [ChannelCount]uint32
	splitID    uint16
	sendQueue  []*frame
	sent       map[uint32]*sentFrameSet
	unacked    int
	windowFree *sync.Cond
	// Receiving.
	haveRecvSeq bool
	recvSeq     uint32
	seenSeq     map[uint32]struct{}
	ackQueue    []uint32
	relSeen     map[uint32]struct{}
	relHighest  uint32
	order       [ChannelCount]orderChannel
	seqHighest  [ChannelCount]uint32
	splits      map[uint16]*splitAssembly
	splitBytes  int
	// Timing and congestion.
	srtt      time.Duration
	lastRecv  time.Time
	lastPing  time.Time
	bandwidth rate.Limit
	limiter   *rate.Limiter
	nackTick  bool
	cleanTick bool
	epoch     time.Time
}

type sentFrameSet struct {
	frames   []*frame
	sentAt   time.Time
	reliable int
}

type orderChannel struct {
	expected uint32
	parked   map[uint32][]byte
}

type splitAssembly struct {
	count     uint32
	frags     map[uint32][]byte
	bytes     int
	createdAt time.Time
}

func newConn(host connHost, raddr netip.AddrPort, guid int64, mtu uint16) *Conn {
	c := &Conn{
		host:  host,
		raddr: raddr,
		guid:  guid,
		mtu:   mtu,

		in:   make(chan []byte, 256),
		pkts: make(chan []byte, 256),
		errs: make(chan error, 8),

		connected: make(chan struct{}),
		closed:    make(chan struct{}),

		sent:      make(map[uint32]*sentFrameSet),
		seenSeq:   make(map[uint32]struct{}),
		relSeen:   make(map[uint32]struct{}),
		splits:    make(map[uint16]*splitAssembly),
		bandwidth: initialBandwidth,
		limiter:   rate.NewLimiter(initialBandwidth, initialBandwidth),
		lastRecv:  time.Now(),
		epoch:     time.Now(),
	}
	c.windowFree = sync.NewCond(&c.mu)
	go c.run()
	return c
}

// RemoteAddr returns the peer's UDP endpoint.
func (c *Conn) RemoteAddr() netip.AddrPort { return c.raddr }

// GUID returns the client-chosen 64-bit identifier.
func (c *Conn) GUID() int64 { return c.guid }

// MTU returns the negotiated maximum transmission unit.
func (c *Conn) MTU() uint16 { return c.mtu }

// Ping returns the smoothed round-trip estimate.
func (c *Conn) Ping() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.srtt
}

// Closed returns a channel closed when the Conn is torn down.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

// WhyClosed returns the error that closed the Conn, or nil for a
// clean local or remote close. It returns nil while the Conn is open.
func (c *Conn) WhyClosed() error {
	select {
	case <-c.closed:
		return c.err
	default:
		return nil
	}
}

// ReadPacket returns the next reassembled payload in delivery order.
func (c *Conn) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-c.pkts:
		return pkt, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		// Drain payloads that were delivered before the close.
		select {
		case pkt := <-c.pkts:
			return pkt, nil
		default:
		}
		if c.err != nil {
			return nil, c.err
		}
		return nil, ErrConnClosed
	}
}

// WritePacket queues a payload with the given reliability on the
// given ordering channel, fragmenting it as needed. It blocks while
// the reliable window is exhausted.
func (c *Conn) WritePacket(payload []byte, rel Reliability, channel uint8) error {
	if channel >= ChannelCount {
		return fmt.Errorf("ordering channel %d >= %d", channel, ChannelCount)
	}
	if !rel.valid() {
		return fmt.Errorf("invalid reliability %d", rel)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for rel.Reliable() && c.unacked >= maxUnackedFrames {
		select {
		case <-c.closed:
			return ErrConnClosed
		default:
		}
		c.windowFree.Wait()
	}
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	c.queueFrames(payload, rel, channel)
	c.flushLocked()
	return nil
}

// Close tears the Conn down after notifying the peer.
func (c *Conn) Close() error { return c.closeWith(nil, true) }

func (c *Conn) closeWith(err error, notify bool) error {
	var first bool
	c.closeOnce.Do(func() {
		first = true
		c.err = err
		if notify {
			// Best-effort disconnect notification, sent raw so it
			// does not depend on the frame queue surviving.
			c.mu.Lock()
			fs := &frameSet{
				seq:    c.nextSeqLocked(),
				frames: []*frame{{reliability: Unreliable, payload: []byte{idDisconnectNotification}}},
			}
			c.mu.Unlock()
			c.host.writeTo(fs.encode(nil), c.raddr)
		}
		close(c.closed)
		c.mu.Lock()
		c.windowFree.Broadcast()
		c.mu.Unlock()
		c.host.removeConn(c)
	})
	if !first {
		return ErrConnClosed
	}
	return nil
}

// nextSeqLocked must only be called with c.mu held or from the close
// path where no other sender can race.
func (c *Conn) nextSeqLocked() uint32 {
	sn := c.sendSeq
	c.sendSeq = (c.sendSeq + 1) & 0xffffff
	return sn
}

// queueFrames splits payload into frames that fit the MTU and
// appends them to the send queue. Caller holds c.mu.
func (c *Conn) queueFrames(payload []byte, rel Reliability, channel uint8) {
	maxBody := int(c.mtu) - maxFrameOverhead

	build := func(body []byte) *frame {
		f := &frame{reliability: rel, orderChannel: channel, payload: body}
		if rel.Reliable() {
			f.reliableIndex = c.relIndex
			c.relIndex++
		}
		if rel.Sequenced() {
			f.sequencedIndex = c.seqIndex[channel]
			c.seqIndex[channel]++
		}
		if rel.Ordered() || rel.Sequenced() {
			f.orderedIndex = c.ordIndex[channel]
		}
		return f
	}

	if len(payload) <= maxBody {
		f := build(payload)
		if rel.Ordered() {
			c.ordIndex[channel]++
		}
		c.sendQueue = append(c.sendQueue, f)
		if rel.Reliable() {
			c.unacked++
		}
		return
	}

	// Fragment: all fragments share the ordered index and a split id.
	splitID := c.splitID
	c.splitID++
	count := (len(payload) + maxBody - 1) / maxBody
	for i := 0; i < count; i++ {
		end := (i + 1) * maxBody
		if end > len(payload) {
			end = len(payload)
		}
		f := build(payload[i*maxBody : end])
		f.split = true
		f.splitCount = uint32(count)
		f.splitID = splitID
		f.splitIndex = uint32(i)
		c.sendQueue = append(c.sendQueue, f)
		if rel.Reliable() {
			c.unacked++
		}
	}
	if rel.Ordered() || rel.Sequenced() {
		c.ordIndex[channel]++
	}
}

// flushLocked drains the send queue into MTU-sized framesets, bounded
// by the congestion bucket. Caller holds c.mu.
func (c *Conn) flushLocked() {
	budget := int(c.mtu) - 28 // UDP/IP overhead
	for len(c.sendQueue) > 0 {
		size := 4
		var frames []*frame
		for len(c.sendQueue) > 0 {
			f := c.sendQueue[0]
			if len(frames) > 0 && size+f.encodedSize() > budget {
				break
			}
			frames = append(frames, f)
			size += f.encodedSize()
			c.sendQueue = c.sendQueue[1:]
		}

		if !c.limiter.AllowN(time.Now(), size) {
			// Out of tokens: put the frames back and wait for the
			// next tick to retry.
			c.sendQueue = append(frames, c.sendQueue...)
			return
		}

		fs := &frameSet{seq: c.nextSeqLocked(), frames: frames}
		reliable := 0
		for _, f := range frames {
			if f.reliability.Reliable() {
				reliable++
			}
		}
		if reliable > 0 {
			c.sent[fs.seq] = &sentFrameSet{frames: frames, sentAt: time.Now(), reliable: reliable}
		}
		c.host.writeTo(fs.encode(nil), c.raddr)
	}
}

// sendControl writes a raw control datagram (ack, nack, and the like)
// outside the frame machinery.
func (c *Conn) sendControl(data []byte) {
	c.host.writeTo(data, c.raddr)
}

func (c *Conn) gotErr(kind string, data []byte, err error) {
	select {
	case c.errs <- PktError{Kind: kind, Data: data, Err: err}:
	default:
	}
}
