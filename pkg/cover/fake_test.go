package cover

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeAdapter serves canned data. A non-nil release blocks searches until it
// is closed or the token fires.
type fakeAdapter struct {
	name    string
	cands   []AlbumCandidate
	images  map[string][]PotentialImage
	dims    map[string][2]int
	release chan struct{}
	panics  bool

	mu       sync.Mutex
	resolved []string
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) SearchAlbumCandidates(tok *Token, q SearchQuery) []AlbumCandidate {
	return SoftList(tok, f.name, "search", func(ctx context.Context) ([]AlbumCandidate, error) {
		if f.panics {
			panic("boom")
		}
		if f.release != nil {
			select {
			case <-f.release:
			case <-ctx.Done():
				return nil, ErrCancelled
			}
		}
		out := make([]AlbumCandidate, len(f.cands))
		copy(out, f.cands)
		for i := range out {
			out[i].SourceService = f.name
		}
		return out, nil
	})
}

func (f *fakeAdapter) ListPotentialImages(tok *Token, c *AlbumCandidate) []PotentialImage {
	return SoftList(tok, f.name, "list", func(ctx context.Context) ([]PotentialImage, error) {
		if err := CheckOwner(c.SourceService, f.name); err != nil {
			return nil, err
		}
		var out []PotentialImage
		for _, pi := range f.images[c.Identifier] {
			pi.Source = c
			out = append(out, pi)
		}
		return out, nil
	})
}

func (f *fakeAdapter) ResolveImageDetails(tok *Token, pi *PotentialImage) *ImageResult {
	return SoftOne(tok, f.name, "resolve", func(ctx context.Context) (*ImageResult, error) {
		if err := CheckOwner(pi.Service(), f.name); err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.resolved = append(f.resolved, pi.Identifier)
		f.mu.Unlock()
		d, ok := f.dims[pi.Identifier]
		if !ok {
			return nil, fmt.Errorf("no dims for %s", pi.Identifier)
		}
		return NewImageResult(pi, d[0], d[1]), nil
	})
}

func (f *fakeAdapter) resolvedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resolved...)
}

// waitFor collects events until one of kind arrives or the timeout passes.
func waitFor(ch <-chan Event, kind EventKind, timeout time.Duration) (Event, []Event, bool) {
	var seen []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return Event{}, seen, false
			}
			seen = append(seen, ev)
			if ev.Kind == kind {
				return ev, seen, true
			}
		case <-deadline:
			return Event{}, seen, false
		}
	}
}

// rawAdapter calls no soft helper, so a panic reaches the session unguarded.
// panicOn names the operation that panics.
type rawAdapter struct {
	name    string
	panicOn string
}

func (r *rawAdapter) Name() string { return r.name }

func (r *rawAdapter) SearchAlbumCandidates(_ *Token, q SearchQuery) []AlbumCandidate {
	if r.panicOn == "search" {
		panic("adapter bug")
	}
	return []AlbumCandidate{{Identifier: "raw-1", AlbumName: q.Album, SourceService: r.name}}
}

func (r *rawAdapter) ListPotentialImages(_ *Token, c *AlbumCandidate) []PotentialImage {
	if r.panicOn == "list" {
		panic("adapter bug")
	}
	return []PotentialImage{{Identifier: "raw-img", IsFront: true, Source: c}}
}

func (r *rawAdapter) ResolveImageDetails(_ *Token, pi *PotentialImage) *ImageResult {
	if r.panicOn == "resolve" {
		panic("adapter bug")
	}
	return NewImageResult(pi, 800, 800)
}
