package pipeline

import "sync"

// Subscription delivers every published RunState to one observer, in order.
// The writer never blocks on a slow observer: snapshots queue in an unbounded
// mailbox until the observer reads them.
type Subscription struct {
	ch   chan RunState
	wake chan struct{}
	done chan struct{}

	mu    sync.Mutex
	queue []RunState

	closeOnce sync.Once
	detach    func(*Subscription)
}

func newSubscription(detach func(*Subscription)) *Subscription {
	s := &Subscription{
		ch:     make(chan RunState),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		detach: detach,
	}
	go s.deliver()
	return s
}

// closedSubscription holds a single snapshot behind an already closed
// channel. It has no delivery goroutine and nothing to detach.
func closedSubscription(st RunState) *Subscription {
	ch := make(chan RunState, 1)
	ch <- st
	close(ch)
	return &Subscription{ch: ch, done: make(chan struct{})}
}

// C returns the delivery channel. It is closed after Close.
func (s *Subscription) C() <-chan RunState {
	return s.ch
}

// Close detaches the subscription and drops undelivered snapshots
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.detach != nil {
			s.detach(s)
		}
		close(s.done)
	})
}

func (s *Subscription) push(st RunState) {
	s.mu.Lock()
	s.queue = append(s.queue, st)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) deliver() {
	defer close(s.ch)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = RunState{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- next:
		case <-s.done:
			return
		}
	}
}
