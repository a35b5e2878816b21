package voice

import (
	"sync"

	"github.com/latoulicious/Hibiki/pkg/logging"
)

// Status represents the state of a media connection
type Status int

const (
	StatusSignalling Status = iota
	StatusConnecting
	StatusReady
	StatusDisconnected
	StatusDestroyed
)

func (s Status) String() string {
	switch s {
	case StatusSignalling:
		return "signalling"
	case StatusConnecting:
		return "connecting"
	case StatusReady:
		return "ready"
	case StatusDisconnected:
		return "disconnected"
	case StatusDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

var transitions = map[Status][]Status{
	StatusSignalling:   {StatusConnecting, StatusDisconnected, StatusDestroyed},
	StatusConnecting:   {StatusReady, StatusDisconnected, StatusDestroyed},
	StatusReady:        {StatusDisconnected, StatusDestroyed},
	StatusDisconnected: {StatusSignalling, StatusConnecting, StatusDestroyed},
}

// CanTransition reports whether a connection may move from one status to another
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

const statusBuffer = 16

// statusFeed holds the current status of a connection and fans transitions
// out to subscribers.
type statusFeed struct {
	mu      sync.Mutex
	current Status
	subs    map[int]chan Status
	nextID  int
	logger  logging.Logger
}

func newStatusFeed(initial Status, logger logging.Logger) *statusFeed {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &statusFeed{
		current: initial,
		subs:    make(map[int]chan Status),
		logger:  logger,
	}
}

func (f *statusFeed) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// transition moves the feed to the given status. It returns false and does
// nothing if the transition is not allowed.
func (f *statusFeed) transition(to Status) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := f.current
	if !CanTransition(from, to) {
		if from != to {
			f.logger.Debug("Ignoring invalid status transition",
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		}
		return false
	}
	f.current = to

	for _, ch := range f.subs {
		f.deliver(ch, to)
	}

	if to == StatusDestroyed {
		for id, ch := range f.subs {
			close(ch)
			delete(f.subs, id)
		}
	}
	return true
}

// deliver queues st for a subscriber. A full subscriber loses its oldest
// queued status so the most recent transitions always arrive. Callers hold f.mu.
func (f *statusFeed) deliver(ch chan Status, st Status) {
	for {
		select {
		case ch <- st:
			return
		default:
		}
		select {
		case old := <-ch:
			f.logger.Warn("Status subscriber full, dropping oldest notification",
				logging.String("dropped", old.String()),
				logging.String("status", st.String()),
			)
		default:
		}
	}
}

// Statuses returns a channel receiving every subsequent transition and a
// function that cancels the subscription. The channel is closed after
// StatusDestroyed is delivered or when the subscription is cancelled.
func (f *statusFeed) Statuses() (<-chan Status, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Status, statusBuffer)
	if f.current == StatusDestroyed {
		ch <- StatusDestroyed
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				close(sub)
				delete(f.subs, id)
			}
		})
	}
}
