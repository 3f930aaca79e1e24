package cover

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrShutdown is returned by StartSearch after Shutdown.
var ErrShutdown = errors.New("orchestrator shut down")

// ErrNoSession is returned by operations that need a current session.
var ErrNoSession = errors.New("no search session")

// Orchestrator owns at most one live search session at a time. Starting a new
// search cancels the previous one so results from different queries are never
// merged into the same view.
type Orchestrator struct {
	registry *Registry
	base     context.Context
	stop     context.CancelFunc
	log      *logrus.Entry
	events   broker

	mu      sync.Mutex
	current *Session
	old     []*Session
	closed  bool
}

// New returns an orchestrator dispatching to the adapters in reg.
func New(reg *Registry) *Orchestrator {
	ctx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		registry: reg,
		base:     ctx,
		stop:     stop,
		log:      logrus.WithField("component", "orchestrator"),
	}
}

// Registry returns the adapter registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// StartSearch cancels any running session and starts a new one for q. The
// returned session is already searching. Empty Options.Services selects every
// registered adapter in name order.
func (o *Orchestrator) StartSearch(q SearchQuery, opts Options) (*Session, error) {
	if q.Empty() {
		return nil, &InputError{Msg: "artist or album is required"}
	}
	names := opts.Services
	if len(names) == 0 {
		names = o.registry.Names()
	}
	adapters, err := o.registry.Resolve(names)
	if err != nil {
		return nil, err
	}
	opts.Services = make([]string, len(adapters))
	for i, a := range adapters {
		opts.Services[i] = a.Name()
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrShutdown
	}
	prev := o.current
	s := newSession(o.base, q, opts, adapters, &o.events)
	o.current = s
	o.old = append(o.old, s)
	o.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	o.log.WithFields(logrus.Fields{
		"session":  s.ID(),
		"artist":   q.Artist,
		"album":    q.Album,
		"services": opts.Services,
	}).Info("search started")
	s.start()
	o.reap()
	return s, nil
}

// reap forgets sessions whose goroutines have all finished.
func (o *Orchestrator) reap() {
	o.mu.Lock()
	defer o.mu.Unlock()
	live := o.old[:0]
	for _, s := range o.old {
		if s == o.current {
			live = append(live, s)
			continue
		}
		select {
		case <-s.collectorDone:
		default:
			live = append(live, s)
		}
	}
	o.old = live
}

// Current returns the live session or nil.
func (o *Orchestrator) Current() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Session returns the current session when its id matches.
func (o *Orchestrator) Session(id string) (*Session, error) {
	s := o.Current()
	if s == nil || (id != "" && s.ID() != id) {
		return nil, ErrNoSession
	}
	return s, nil
}

// Snapshot returns the view of the current session.
func (o *Orchestrator) Snapshot() (Snapshot, error) {
	s := o.Current()
	if s == nil {
		return Snapshot{}, ErrNoSession
	}
	return s.Snapshot(), nil
}

// Cancel cancels the current session, if any.
func (o *Orchestrator) Cancel() {
	if s := o.Current(); s != nil {
		s.Cancel()
	}
}

// Subscribe registers for events of every session. The returned function
// unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	return o.events.subscribe()
}

// Shutdown cancels the current session, waits for all session goroutines and
// closes every subscription. Later StartSearch calls fail with ErrShutdown.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	sessions := o.old
	o.old = nil
	o.mu.Unlock()

	o.stop()
	for _, s := range sessions {
		s.shutdown()
	}
	o.events.close()
	o.log.Info("orchestrator stopped")
}
