package cover

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// resolveConcurrency bounds the dimension probes running at once for one
// service.
const resolveConcurrency = 3

var (
	// ErrBatchRunning is returned when a service already has a batch in flight.
	ErrBatchRunning = errors.New("batch already running")
	// ErrSearchPending is returned when more images are requested from a
	// service whose search has not finished.
	ErrSearchPending = errors.New("search still running")
	// ErrSessionEnded is returned for requests against a finished session.
	ErrSessionEnded = errors.New("session ended")
)

// browser walks the candidates of one service in rank order, enumerating their
// images and resolving them a batch at a time.
type browser struct {
	adapter Adapter

	mu      sync.Mutex
	ready   bool
	running bool
	queue   []AlbumCandidate
	pending []PotentialImage
}

func (b *browser) reset(cands []AlbumCandidate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append([]AlbumCandidate(nil), cands...)
	b.pending = nil
	b.ready = true
}

func (b *browser) hasMore() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) > 0 || len(b.pending) > 0
}

// RequestMore starts resolving the next batch of images for service. The batch
// runs in the background and reports through events: one
// potential_image_found per enumerated image, one image_resolved per probe and
// a final batch_completed, batch_cancelled or batch_failed.
func (s *Session) RequestMore(service string) error {
	if s.token.Cancelled() || s.State().Terminal() {
		return ErrSessionEnded
	}
	b, ok := s.browsers[strings.ToLower(service)]
	if !ok {
		return fmt.Errorf("unknown service %q", service)
	}
	b.mu.Lock()
	switch {
	case !b.ready:
		b.mu.Unlock()
		return ErrSearchPending
	case b.running:
		b.mu.Unlock()
		return ErrBatchRunning
	}
	b.running = true
	b.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			b.mu.Lock()
			b.running = false
			b.mu.Unlock()
		}()
		s.runBatch(b)
	}()
	return nil
}

func (s *Session) runBatch(b *browser) {
	name := b.adapter.Name()
	log := s.log.WithField("service", name)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("batch failed")
			s.send(post{kind: postEvent, event: Event{Kind: EventBatchFailed, Service: name, Message: fmt.Sprint(r)}})
		}
	}()

	batch := s.nextBatch(b)
	if s.token.Cancelled() {
		s.send(post{kind: postEvent, event: Event{Kind: EventBatchCancelled, Service: name}})
		return
	}

	var g errgroup.Group
	g.SetLimit(resolveConcurrency)
	var mu sync.Mutex
	accepted := 0
	for i := range batch {
		pi := &batch[i]
		g.Go(func() error {
			if s.token.Cancelled() {
				return ErrCancelled
			}
			if _, ok := s.resolve(b.adapter, pi); ok {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil || s.token.Cancelled() {
		log.Debug("batch cancelled")
		s.send(post{kind: postEvent, event: Event{Kind: EventBatchCancelled, Service: name}})
		return
	}
	more := b.hasMore()
	log.WithField("images", len(batch)).WithField("accepted", accepted).Debug("batch completed")
	s.send(post{kind: postEvent, event: Event{Kind: EventBatchCompleted, Service: name, Count: len(batch), HasMore: more}})
}

// nextBatch takes up to BatchSize images off the pending list, enumerating
// queued candidates as needed.
func (s *Session) nextBatch(b *browser) []PotentialImage {
	size := s.opts.BatchSize
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.pending) < size && len(b.queue) > 0 {
		if s.token.Cancelled() {
			return nil
		}
		c := b.queue[0]
		b.queue = b.queue[1:]
		owned := s.candidate(&c)
		var listed []PotentialImage
		guarded(b.adapter.Name(), "list", func() { listed = b.adapter.ListPotentialImages(s.token, owned) })
		images := s.filterFront(listed)
		s.remember(images)
		for i := range images {
			found := images[i]
			s.send(post{kind: postEvent, event: Event{Kind: EventPotentialImageFound, Service: b.adapter.Name(), Image: &found}})
		}
		b.pending = append(b.pending, images...)
	}
	n := size
	if n > len(b.pending) {
		n = len(b.pending)
	}
	batch := append([]PotentialImage(nil), b.pending[:n]...)
	b.pending = b.pending[n:]
	return batch
}
