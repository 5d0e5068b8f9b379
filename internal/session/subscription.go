package session

import (
	"sync"
	"time"
)

// Subscription is one consumer's ordered view of a session: the retained log
// first, then live entries, ending after the terminal transition. Each
// subscription reads at its own pace; one that falls further behind than the
// scrollback capacity gets an EventOverrun and resumes at the oldest entry.
type Subscription struct {
	s      *Session
	events chan Event
	cancel chan struct{}
	once   sync.Once
	cursor uint64
}

// Subscribe attaches a new subscriber. It never affects the transport.
func (s *Session) Subscribe() *Subscription {
	sub := &Subscription{
		s:      s,
		events: make(chan Event),
		cancel: make(chan struct{}),
	}

	s.mu.Lock()
	sub.cursor = s.log.oldest()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go sub.run()
	return sub
}

// Events yields the subscriber's view; it is closed after the terminal
// transition or on Cancel
func (sub *Subscription) Events() <-chan Event { return sub.events }

// Cancel detaches the subscriber. Safe to call more than once.
func (sub *Subscription) Cancel() {
	sub.once.Do(func() { close(sub.cancel) })
}

func (sub *Subscription) run() {
	s := sub.s
	defer s.detach(sub)
	defer close(sub.events)

	for {
		s.mu.Lock()
		batch, missed := s.log.since(sub.cursor)
		terminal := s.state.Terminal()
		wake := s.notify
		s.mu.Unlock()

		if missed > 0 {
			s.metrics.IncSubscriberOverrun()
			s.logger.Debug("subscriber overrun")
			notice := Event{Type: EventOverrun, Seq: sub.cursor, Time: time.Now(), Missed: missed}
			if !sub.send(notice) {
				return
			}
			sub.cursor += missed
		}

		for _, ev := range batch {
			if !sub.send(ev) {
				return
			}
			sub.cursor = ev.Seq + 1
			if ev.Terminal() {
				return
			}
		}

		if len(batch) == 0 && missed == 0 {
			if terminal {
				return
			}
			select {
			case <-wake:
			case <-sub.cancel:
				return
			}
		}
	}
}

func (sub *Subscription) send(ev Event) bool {
	select {
	case sub.events <- ev:
		return true
	case <-sub.cancel:
		return false
	}
}

func (s *Session) detach(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subs, sub)
	if s.state.Terminal() && len(s.subs) == 0 {
		s.markDrained()
	}
}

// Subscribers reports how many subscribers are attached
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// CancelSubscribers detaches every subscriber, read or not
func (s *Session) CancelSubscribers() {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}
