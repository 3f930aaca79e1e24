package cover

import (
	"context"
	"strings"
	"sync"

	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"

	"Cover-Art-Go/pkg/metrics"
)

// DefaultBatchSize is the number of images resolved per service and batch
// when Options.BatchSize is not set.
const DefaultBatchSize = 5

// Options tune a single search session.
type Options struct {
	// Services lists the enabled services in presentation priority order.
	// An empty list enables every registered adapter.
	Services []string
	// MinWidth and MinHeight are inclusive lower bounds applied to resolved
	// images. Zero accepts everything.
	MinWidth  int
	MinHeight int
	// FrontOnly drops images the service does not mark as a front cover.
	FrontOnly bool
	// BatchSize is the number of images resolved per RequestMore call.
	BatchSize int
	// Browse starts the first batch for each service as soon as its search
	// returns.
	Browse bool
}

// ServiceResults is the view of one service inside a Snapshot.
type ServiceResults struct {
	Service    string           `json:"service"`
	Done       bool             `json:"done"`
	Candidates []AlbumCandidate `json:"candidates"`
	Images     []ImageResult    `json:"images,omitempty"`
}

// Snapshot is a point in time copy of a session's results. Services appear in
// the priority order the session was started with regardless of which
// adapter finished first.
type Snapshot struct {
	Session  string           `json:"session"`
	State    State            `json:"state"`
	Query    SearchQuery      `json:"query"`
	Services []ServiceResults `json:"services"`
	Pending  int              `json:"pending"`
	Chosen   *ImageResult     `json:"chosen,omitempty"`
}

type postKind int

const (
	postSearch postKind = iota
	postResolved
	postEvent
)

// post is the message adapter goroutines send to the collector.
type post struct {
	tokenID    uint64
	kind       postKind
	service    string
	candidates []AlbumCandidate
	result     *ImageResult
	accepted   bool
	event      Event
}

type bucket struct {
	done       bool
	candidates []AlbumCandidate
	images     []ImageResult
}

// Session is one search across the enabled adapters. All result mutations go
// through a single collector goroutine; callers read copies via Snapshot.
type Session struct {
	id       string
	query    SearchQuery
	opts     Options
	token    *Token
	adapters []Adapter
	log      *logrus.Entry
	events   *broker

	posts         chan post
	searchesDone  chan struct{}
	collectorDone chan struct{}
	wg            sync.WaitGroup

	mu       sync.RWMutex
	state    State
	ended    bool
	pending  int
	buckets  map[string]*bucket
	listed   map[string]PotentialImage
	chosen   *ImageResult
	browsers map[string]*browser
}

func newSession(parent context.Context, q SearchQuery, opts Options, adapters []Adapter, events *broker) *Session {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	id := uuid.New()
	s := &Session{
		id:            id,
		query:         q,
		opts:          opts,
		token:         NewToken(parent),
		adapters:      adapters,
		log:           logrus.WithField("session", id),
		events:        events,
		posts:         make(chan post, len(adapters)+1),
		searchesDone:  make(chan struct{}),
		collectorDone: make(chan struct{}),
		state:         StateIdle,
		pending:       len(adapters),
		buckets:       make(map[string]*bucket, len(adapters)),
		listed:        make(map[string]PotentialImage),
		browsers:      make(map[string]*browser, len(adapters)),
	}
	for _, a := range adapters {
		s.buckets[a.Name()] = &bucket{}
		s.browsers[strings.ToLower(a.Name())] = &browser{adapter: a}
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Query returns the query the session was started with.
func (s *Session) Query() SearchQuery { return s.query }

// Options returns the effective options of the session.
func (s *Session) Options() Options { return s.opts }

// Token returns the cancellation token of the session.
func (s *Session) Token() *Token { return s.token }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// start launches the collector and one search goroutine per adapter.
func (s *Session) start() {
	s.setState(StateSearching)
	metrics.SessionStarted()
	go s.collect()
	if len(s.adapters) == 0 {
		close(s.searchesDone)
		s.setState(StateReady)
		s.publish(Event{Kind: EventAllSearchesConcluded})
		return
	}
	for _, a := range s.adapters {
		a := a
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.search(a)
		}()
	}
}

func (s *Session) search(a Adapter) {
	log := s.log.WithField("service", a.Name())
	if s.token.Cancelled() {
		log.Debug("search skipped, session cancelled")
		return
	}
	var cands []AlbumCandidate
	guarded(a.Name(), "search", func() { cands = a.SearchAlbumCandidates(s.token, s.query) })
	if s.token.Cancelled() {
		log.Debug("discarding search results of cancelled session")
		return
	}
	ranked := Rank(s.query, cands)
	s.browsers[strings.ToLower(a.Name())].reset(ranked)
	log.WithField("candidates", len(ranked)).Info("search finished")
	s.send(post{kind: postSearch, service: a.Name(), candidates: ranked})
	if s.opts.Browse && len(ranked) > 0 {
		s.RequestMore(a.Name())
	}
}

// send hands p to the collector unless the session is gone.
func (s *Session) send(p post) {
	p.tokenID = s.token.ID()
	select {
	case s.posts <- p:
	case <-s.token.Done():
	}
}

func (s *Session) collect() {
	defer close(s.collectorDone)
	for {
		select {
		case p := <-s.posts:
			s.apply(p)
		case <-s.token.Done():
			return
		}
	}
}

// apply commits one post. It is only called from the collector goroutine.
func (s *Session) apply(p post) {
	if p.tokenID != s.token.ID() || s.token.Cancelled() {
		return
	}
	switch p.kind {
	case postSearch:
		s.mu.Lock()
		b := s.buckets[p.service]
		b.candidates = p.candidates
		b.done = true
		s.pending--
		concluded := s.pending == 0
		if concluded && s.state == StateSearching {
			s.state = StateReady
		}
		state := s.state
		s.mu.Unlock()
		s.events.publish(Event{Kind: EventSearchSucceeded, Session: s.id, Service: p.service, State: state, Count: len(p.candidates)})
		if concluded {
			close(s.searchesDone)
			s.events.publish(Event{Kind: EventAllSearchesConcluded, Session: s.id, State: state})
		}
	case postResolved:
		s.mu.Lock()
		if p.accepted {
			b := s.buckets[p.service]
			b.images = append(b.images, *p.result)
		}
		state := s.state
		s.mu.Unlock()
		s.events.publish(Event{Kind: EventImageResolved, Session: s.id, Service: p.service, State: state, Accepted: p.accepted, Result: p.result})
	case postEvent:
		s.publish(p.event)
	}
}

func (s *Session) publish(ev Event) {
	ev.Session = s.id
	ev.State = s.State()
	s.events.publish(ev)
}

// transition moves the session to next when the current state is one of from.
func (s *Session) transition(next State, from ...State) bool {
	_, ok := s.swap(next, from...)
	return ok
}

// swap is transition that also returns the state it moved away from.
func (s *Session) swap(next State, from ...State) (State, bool) {
	s.mu.Lock()
	prev := s.state
	ok := false
	for _, f := range from {
		if s.state == f {
			ok = true
			break
		}
	}
	if ok {
		s.state = next
	}
	s.mu.Unlock()
	if ok {
		s.publish(Event{Kind: EventStateChanged})
	}
	return prev, ok
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = next
	end := next.Terminal() && !s.ended
	if end {
		s.ended = true
	}
	s.mu.Unlock()
	if end {
		metrics.SessionEnded(next.String())
	}
	s.publish(Event{Kind: EventStateChanged})
}

// Wait blocks until every adapter search has reported, the session was
// cancelled or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.searchesDone:
		return nil
	case <-s.token.Done():
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel signals the session token and moves it to Cancelled. In-flight
// adapter calls are not waited for; their results are dropped on arrival.
func (s *Session) Cancel() {
	s.token.Cancel()
	s.setState(StateCancelled)
	s.log.Info("session cancelled")
}

// Snapshot copies the current results.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Session:  s.id,
		State:    s.state,
		Query:    s.query,
		Pending:  s.pending,
		Services: make([]ServiceResults, 0, len(s.adapters)),
	}
	if s.chosen != nil {
		c := *s.chosen
		snap.Chosen = &c
	}
	for _, a := range s.adapters {
		b := s.buckets[a.Name()]
		snap.Services = append(snap.Services, ServiceResults{
			Service:    a.Name(),
			Done:       b.done,
			Candidates: append([]AlbumCandidate(nil), b.candidates...),
			Images:     append([]ImageResult(nil), b.images...),
		})
	}
	return snap
}

func (s *Session) adapter(name string) Adapter {
	for _, a := range s.adapters {
		if strings.EqualFold(a.Name(), name) {
			return a
		}
	}
	return nil
}

// candidate returns the session owned copy of c so image back-references
// point at the candidate stored in the result view.
func (s *Session) candidate(c *AlbumCandidate) *AlbumCandidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.buckets[c.SourceService]; ok {
		for i := range b.candidates {
			if b.candidates[i].Identifier == c.Identifier {
				return &b.candidates[i]
			}
		}
	}
	return c
}

func (s *Session) remember(images []PotentialImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pi := range images {
		s.listed[pi.Identifier] = pi
	}
}

// PotentialImage returns an image previously enumerated in this session.
func (s *Session) PotentialImage(identifier string) (PotentialImage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pi, ok := s.listed[identifier]
	return pi, ok
}

// FindCandidate looks a candidate up by service and identifier.
func (s *Session) FindCandidate(service, identifier string) (AlbumCandidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, b := range s.buckets {
		if !strings.EqualFold(name, service) {
			continue
		}
		for _, c := range b.candidates {
			if c.Identifier == identifier {
				return c, true
			}
		}
	}
	return AlbumCandidate{}, false
}

func (s *Session) filterFront(images []PotentialImage) []PotentialImage {
	if !s.opts.FrontOnly {
		return images
	}
	out := images[:0:0]
	for _, pi := range images {
		if pi.IsFront {
			out = append(out, pi)
		}
	}
	return out
}

// settled returns the state a selection falls back to: Ready once every
// search has reported and Searching before that.
func (s *Session) settled() State {
	select {
	case <-s.searchesDone:
		return StateReady
	default:
		return StateSearching
	}
}

// SelectCandidate asks the owning adapter to enumerate the images of c.
// Candidates may be selected while other services are still searching. An
// empty result returns the session to Ready.
func (s *Session) SelectCandidate(c *AlbumCandidate) []PotentialImage {
	if c == nil {
		return nil
	}
	if !s.transition(StateEnumeratingImages, StateSearching, StateReady, StateEnumeratingImages) {
		s.log.WithField("state", s.State()).Debug("candidate selection ignored")
		return nil
	}
	a := s.adapter(c.SourceService)
	if a == nil {
		s.log.WithField("service", c.SourceService).Error("candidate from a service outside this session")
		s.transition(s.settled(), StateEnumeratingImages)
		return nil
	}
	owned := s.candidate(c)
	var listed []PotentialImage
	guarded(a.Name(), "list", func() { listed = a.ListPotentialImages(s.token, owned) })
	images := s.filterFront(listed)
	if s.token.Cancelled() {
		return nil
	}
	if len(images) == 0 {
		s.transition(s.settled(), StateEnumeratingImages)
		return nil
	}
	s.remember(images)
	s.log.WithFields(logrus.Fields{"service": a.Name(), "images": len(images)}).Info("images listed")
	return images
}

// SelectImage resolves pi and applies the minimum dimension filter. The
// result is returned even when it is rejected so callers can show why; the
// boolean reports acceptance. An accepted image ends the session in Done; a
// rejected one returns it to where the selection started.
func (s *Session) SelectImage(pi *PotentialImage) (*ImageResult, bool) {
	if pi == nil {
		return nil, false
	}
	if pi.Source == nil {
		if known, ok := s.PotentialImage(pi.Identifier); ok {
			pi = &known
		}
	}
	prev, ok := s.swap(StateResolving, StateSearching, StateReady, StateEnumeratingImages)
	if !ok {
		s.log.WithField("state", s.State()).Debug("image selection ignored")
		return nil, false
	}
	back := func() {
		if prev == StateEnumeratingImages {
			s.transition(StateEnumeratingImages, StateResolving)
			return
		}
		s.transition(s.settled(), StateResolving)
	}
	a := s.adapter(pi.Service())
	if a == nil {
		s.log.WithField("image", pi.Identifier).Error("image from a service outside this session")
		back()
		return nil, false
	}
	res, accepted := s.resolve(a, pi)
	if s.token.Cancelled() {
		return nil, false
	}
	if !accepted {
		back()
		return res, false
	}
	s.mu.Lock()
	s.chosen = res
	s.mu.Unlock()
	s.setState(StateDone)
	return res, true
}

// resolve runs the adapter and the filter and posts the outcome.
func (s *Session) resolve(a Adapter, pi *PotentialImage) (*ImageResult, bool) {
	var res *ImageResult
	guarded(a.Name(), "resolve", func() { res = a.ResolveImageDetails(s.token, pi) })
	if res == nil || s.token.Cancelled() {
		return nil, false
	}
	accepted := res.Passes(s.opts.MinWidth, s.opts.MinHeight)
	metrics.ImageResolved(a.Name(), accepted)
	s.log.WithFields(logrus.Fields{
		"service":  a.Name(),
		"width":    res.FullWidth,
		"height":   res.FullHeight,
		"accepted": accepted,
	}).Debug("image resolved")
	s.send(post{kind: postResolved, service: a.Name(), result: res, accepted: accepted})
	return res, accepted
}

// AutoSelect waits for the searches and then walks services in priority
// order, candidates in rank order and images in listing order, returning the
// first image that passes the dimension filter.
func (s *Session) AutoSelect(ctx context.Context) (*ImageResult, bool) {
	if err := s.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			s.Cancel()
		}
		return nil, false
	}
	for _, res := range s.Snapshot().Services {
		for i := range res.Candidates {
			if ctx.Err() != nil {
				s.Cancel()
				return nil, false
			}
			images := s.SelectCandidate(&res.Candidates[i])
			for j := range images {
				if ctx.Err() != nil || s.token.Cancelled() {
					s.Cancel()
					return nil, false
				}
				if r, ok := s.SelectImage(&images[j]); ok {
					return r, true
				}
			}
		}
	}
	s.log.Info("no image satisfied the size filter")
	return nil, false
}

// Chosen returns the accepted image, if any.
func (s *Session) Chosen() *ImageResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chosen
}

// shutdown cancels the session and waits for its goroutines.
func (s *Session) shutdown() {
	s.Cancel()
	s.wg.Wait()
	<-s.collectorDone
}
