package raknet

import (
	"fmt"
	"time"
)

// run is the per-peer task: it drains incoming datagrams and drives
// the periodic tick until the Conn closes.
func (c *Conn) run() {
	tick := time.NewTicker(TickInterval)
	defer tick.Stop()

	for {
		select {
		case data := <-c.in:
			if err := c.processDatagram(data); err != nil {
				c.gotErr("datagram", data, err)
			}
		case <-tick.C:
			c.tick()
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) processDatagram(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	c.mu.Lock()
	c.lastRecv = time.Now()
	c.mu.Unlock()

	switch id := data[0]; {
	case id == idAck:
		return c.handleAck(data)
	case id == idNack:
		return c.handleNack(data)
	case id >= idFrameSetMin && id <= idFrameSetMax:
		return c.handleFrameSet(data)
	default:
		return fmt.Errorf("unexpected datagram id 0x%02x", id)
	}
}

func (c *Conn) handleAck(data []byte) error {
	records, err := decodeAcks(data)
	if err != nil {
		return fmt.Errorf("ack: %w", err)
	}

	c.mu.Lock()
	released := 0
	for _, rec := range records {
		for sn := rec.min; sn <= rec.max; sn++ {
			if fs, ok := c.sent[sn]; ok {
				released += fs.reliable
				delete(c.sent, sn)
			}
		}
	}
	if released > 0 {
		c.unacked -= released
		if c.unacked < 0 {
			c.unacked = 0
		}
		c.windowFree.Broadcast()
	}
	if len(c.sent) == 0 {
		c.cleanTick = true
	}
	c.mu.Unlock()
	return nil
}

func (c *Conn) handleNack(data []byte) error {
	records, err := decodeAcks(data)
	if err != nil {
		return fmt.Errorf("nack: %w", err)
	}

	c.mu.Lock()
	for _, rec := range records {
		for sn := rec.min; sn <= rec.max; sn++ {
			if fs, ok := c.sent[sn]; ok {
				delete(c.sent, sn)
				// The frames go out again under a fresh frameset
				// sequence number; reliable indices are kept, and
				// they stay counted against the unacked window.
				c.sendQueue = append(c.sendQueue, fs.frames...)
			}
		}
	}
	c.nackTick = true
	c.flushLocked()
	c.mu.Unlock()
	return nil
}

func (c *Conn) handleFrameSet(data []byte) error {
	fs, err := decodeFrameSet(data)
	if err != nil {
		return fmt.Errorf("frameset: %w", err)
	}

	c.mu.Lock()
	if _, dup := c.seenSeq[fs.seq]; dup {
		c.mu.Unlock()
		return nil
	}
	c.seenSeq[fs.seq] = struct{}{}
	c.ackQueue = append(c.ackQueue, fs.seq)

	// A gap below the new sequence number means loss: nack the
	// missing range immediately.
	var nacks []uint32
	if c.haveRecvSeq && fs.seq > c.recvSeq+1 {
		for sn := c.recvSeq + 1; sn < fs.seq; sn++ {
			if _, ok := c.seenSeq[sn]; !ok {
				nacks = append(nacks, sn)
			}
		}
	}
	if !c.haveRecvSeq || fs.seq > c.recvSeq {
		c.haveRecvSeq = true
		c.recvSeq = fs.seq
	}
	pruneSeqSet(c.seenSeq, c.recvSeq)
	c.mu.Unlock()

	if len(nacks) > 0 {
		c.sendControl(encodeAcks(idNack, packAckRecords(nacks), nil))
	}

	for _, f := range fs.frames {
		if err := c.processFrame(f); err != nil {
			c.gotErr("frame", f.payload, err)
		}
	}
	return nil
}

// pruneSeqSet keeps the duplicate-detection set bounded.
func pruneSeqSet(set map[uint32]struct{}, highest uint32) {
	if len(set) <= 4096 {
		return
	}
	for sn := range set {
		if highest > 2048 && sn < highest-2048 {
			delete(set, sn)
		}
	}
}

func (c *Conn) processFrame(f *frame) error {
	c.mu.Lock()
	if f.reliability.Reliable() {
		if _, dup := c.relSeen[f.reliableIndex]; dup {
			c.mu.Unlock()
			return nil
		}
		c.relSeen[f.reliableIndex] = struct{}{}
		if f.reliableIndex > c.relHighest {
			c.relHighest = f.reliableIndex
		}
		pruneSeqSet(c.relSeen, c.relHighest)
	}
	c.mu.Unlock()

	payload := f.payload
	if f.split {
		assembled, err := c.reassemble(f)
		if err != nil {
			return err
		}
		if assembled == nil {
			return nil
		}
		payload = assembled
	}

	switch {
	case f.reliability.Ordered():
		for _, p := range c.ordered(f.orderChannel, f.orderedIndex, payload) {
			c.deliver(p)
		}
	case f.reliability.Sequenced():
		c.mu.Lock()
		stale := f.sequencedIndex < c.seqHighest[f.orderChannel]
		if !stale {
			c.seqHighest[f.orderChannel] = f.sequencedIndex
		}
		c.mu.Unlock()
		if !stale {
			c.deliver(payload)
		}
	default:
		c.deliver(payload)
	}
	return nil
}

// ordered runs one frame through its ordering channel, returning the
// payloads that became deliverable.
func (c *Conn) ordered(channel uint8, index uint32, payload []byte) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := &c.order[channel]
	if ch.parked == nil {
		ch.parked = make(map[uint32][]byte)
	}

	if index < ch.expected {
		return nil // duplicate of an already delivered frame
	}
	if index > ch.expected {
		if len(ch.parked) >= maxOrderBuffer {
			// Overflow: drop the oldest parked frame; the nack path
			// will recover it.
			var oldest uint32
			first := true
			for sn := range ch.parked {
				if first || sn < oldest {
					oldest, first = sn, false
				}
			}
			delete(ch.parked, oldest)
		}
		ch.parked[index] = payload
		return nil
	}

	out := [][]byte{payload}
	ch.expected++
	for {
		next, ok := ch.parked[ch.expected]
		if !ok {
			break
		}
		delete(ch.parked, ch.expected)
		out = append(out, next)
		ch.expected++
	}
	return out
}

// reassemble adds one fragment, returning the whole payload once the
// last fragment arrives.
func (c *Conn) reassemble(f *frame) ([]byte, error) {
	if f.splitCount == 0 || f.splitCount > maxSplitCount {
		return nil, fmt.Errorf("split count %d out of range", f.splitCount)
	}
	if f.splitIndex >= f.splitCount {
		return nil, fmt.Errorf("split index %d >= count %d", f.splitIndex, f.splitCount)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.splits[f.splitID]
	if !ok {
		s = &splitAssembly{
			count:     f.splitCount,
			frags:     make(map[uint32][]byte),
			createdAt: time.Now(),
		}
		c.splits[f.splitID] = s
	}
	if s.count != f.splitCount {
		return nil, fmt.Errorf("split %d count changed %d -> %d", f.splitID, s.count, f.splitCount)
	}
	if _, dup := s.frags[f.splitIndex]; dup {
		return nil, nil
	}

	if c.splitBytes+len(f.payload) > maxSplitBytes {
		c.mu.Unlock()
		err := c.closeWith(fmt.Errorf("fragmentation buffers over %d bytes", maxSplitBytes), true)
		c.mu.Lock()
		return nil, err
	}

	s.frags[f.splitIndex] = f.payload
	s.bytes += len(f.payload)
	c.splitBytes += len(f.payload)

	if uint32(len(s.frags)) < s.count {
		return nil, nil
	}

	delete(c.splits, f.splitID)
	c.splitBytes -= s.bytes
	out := make([]byte, 0, s.bytes)
	for i := uint32(0); i < s.count; i++ {
		out = append(out, s.frags[i]...)
	}
	return out, nil
}

// deliver routes one fully ordered payload: connected RakNet packets
// are handled here, everything else goes to the reader.
func (c *Conn) deliver(payload []byte) {
	if len(payload) == 0 {
		return
	}
	switch payload[0] {
	case idConnectedPing:
		t, err := decodeConnectedPing(payload)
		if err != nil {
			c.gotErr("connected", payload, err)
			return
		}
		c.writeConnected(encodeConnectedPong(t, c.clock()), Unreliable)
	case idConnectedPong:
		pingTime, _, err := decodeConnectedPong(payload)
		if err != nil {
			c.gotErr("connected", payload, err)
			return
		}
		c.observeRTT(time.Duration(c.clock()-pingTime) * time.Millisecond)
	case idConnectionRequest:
		req, err := decodeConnectionRequest(payload)
		if err != nil {
			c.gotErr("connected", payload, err)
			return
		}
		c.writeConnected(encodeConnectionRequestAccepted(c.raddr, req.sendTime, c.clock()), ReliableOrdered)
	case idConnectionRequestOK:
		// Client side: echo the timestamps back and consider the
		// connection up.
		requestTime, acceptTime, err := decodeConnectionRequestAccepted(payload)
		if err != nil {
			c.gotErr("connected", payload, err)
			return
		}
		c.writeConnected(encodeNewIncomingConnection(c.raddr, requestTime, acceptTime), ReliableOrdered)
		select {
		case <-c.connected:
		default:
			close(c.connected)
			c.host.queueAccept(c)
		}
	case idNewIncomingConnection:
		if _, err := decodeNewIncomingConnection(payload); err != nil {
			c.gotErr("connected", payload, err)
			return
		}
		select {
		case <-c.connected:
		default:
			close(c.connected)
			c.host.queueAccept(c)
		}
	case idDisconnectNotification:
		c.closeWith(nil, false)
	default:
		select {
		case c.pkts <- payload:
		case <-c.closed:
		}
	}
}

func (c *Conn) writeConnected(payload []byte, rel Reliability) {
	c.mu.Lock()
	c.queueFrames(payload, rel, 0)
	c.flushLocked()
	c.mu.Unlock()
}

// clock returns milliseconds since the session started, the
// session-relative timestamp used by connected pings.
func (c *Conn) clock() int64 {
	return time.Since(c.epoch).Milliseconds()
}

func (c *Conn) observeRTT(rtt time.Duration) {
	if rtt <= 0 {
		return
	}
	c.mu.Lock()
	if c.srtt == 0 {
		c.srtt = rtt
	} else {
		c.srtt = (c.srtt*7 + rtt) / 8
	}
	c.mu.Unlock()
}

// rtoLocked returns the adaptive retransmission timeout.
func (c *Conn) rtoLocked() time.Duration {
	rto := 3 * c.srtt
	if rto < minRTO {
		rto = minRTO
	}
	if rto > maxRTO {
		rto = maxRTO
	}
	return rto
}

// tick runs the 50 ms bookkeeping pass: acks, retransmission,
// congestion adjustment, keepalive and timeout.
func (c *Conn) tick() {
	now := time.Now()

	c.mu.Lock()

	if now.Sub(c.lastRecv) > ConnTimeout {
		c.mu.Unlock()
		c.closeWith(ErrTimedOut, false)
		return
	}

	// Flush accumulated acks.
	var acks []byte
	if len(c.ackQueue) > 0 {
		acks = encodeAcks(idAck, packAckRecords(c.ackQueue), nil)
		c.ackQueue = c.ackQueue[:0]
	}

	// Retransmit framesets past the adaptive timeout.
	rto := c.rtoLocked()
	for sn, fs := range c.sent {
		if now.Sub(fs.sentAt) > rto {
			delete(c.sent, sn)
			c.sendQueue = append(c.sendQueue, fs.frames...)
			c.nackTick = true
		}
	}

	// AIMD-flavored congestion adjustment on the tick boundary.
	switch {
	case c.nackTick:
		c.bandwidth /= 2
		if c.bandwidth < initialBandwidth {
			c.bandwidth = initialBandwidth
		}
	case c.cleanTick:
		c.bandwidth *= 2
		if c.bandwidth > maxBandwidth {
			c.bandwidth = maxBandwidth
		}
	}
	if c.limiter.Limit() != c.bandwidth {
		c.limiter.SetLimit(c.bandwidth)
		c.limiter.SetBurst(int(c.bandwidth))
	}
	c.nackTick, c.cleanTick = false, false

	// Expire stale fragment assemblies.
	for id, s := range c.splits {
		if now.Sub(s.createdAt) > splitTimeout {
			c.splitBytes -= s.bytes
			delete(c.splits, id)
		}
	}

	ping := now.Sub(c.lastPing) > PingInterval
	if ping {
		c.lastPing = now
	}

	c.flushLocked()
	c.mu.Unlock()

	if acks != nil {
		c.sendControl(acks)
	}
	if ping {
		c.writeConnected(encodeConnectedPing(c.clock()), Unreliable)
	}
}
