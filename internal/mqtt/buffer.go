package mqtt

import "log"

// bufferedMsg stores a serialized outbound message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that holds outbound messages while
// disconnected. When full the oldest message is overwritten, so the most
// recent calibration for a thermostat is always kept. Callers synchronize.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any message was dropped since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if r.count == r.capacity {
		if !r.overflow {
			log.Printf("mqtt: outbound buffer full (%d messages), dropping oldest", r.capacity)
			r.overflow = true
		}
		// Overwrite oldest: head is already pointing at it
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		// count stays at capacity
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	result := make([]bufferedMsg, r.count)
	// Oldest item is at (head - count) mod capacity
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	r.overflow = false
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}

// latestPerTopic keeps only the newest message for each topic, in the order
// those newest messages were queued. Replaying an older calibration after a
// newer one would undo it.
func latestPerTopic(msgs []bufferedMsg) []bufferedMsg {
	last := make(map[string]int, len(msgs))
	for i, m := range msgs {
		last[m.topic] = i
	}
	out := make([]bufferedMsg, 0, len(last))
	for i, m := range msgs {
		if last[m.topic] == i {
			out = append(out, m)
		}
	}
	return out
}
