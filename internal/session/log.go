package session

// ring is a fixed-capacity log of sequenced events. The oldest entry is
// evicted first. Sequences start at 1.
type ring struct {
	buf   []Event
	start int
	n     int
	next  uint64
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]Event, capacity), next: 1}
}

// push assigns the next sequence to ev and stores it
func (r *ring) push(ev Event) Event {
	ev.Seq = r.next
	r.next++

	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = ev
		r.n++
		return ev
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
	return ev
}

// oldest is the sequence of the oldest retained entry
func (r *ring) oldest() uint64 {
	return r.next - uint64(r.n)
}

// since copies entries from seq onward. missed counts requested entries that
// were already evicted.
func (r *ring) since(seq uint64) (events []Event, missed uint64) {
	oldest := r.oldest()
	if seq < oldest {
		missed = oldest - seq
		seq = oldest
	}
	if seq >= r.next {
		return nil, missed
	}

	count := int(r.next - seq)
	events = make([]Event, count)
	offset := int(seq - oldest)
	for i := 0; i < count; i++ {
		events[i] = r.buf[(r.start+offset+i)%len(r.buf)]
	}
	return events, missed
}

func (r *ring) len() int { return r.n }
