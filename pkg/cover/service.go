// Package cover defines the contract shared by every album art service and
// the engine that drives a search across them. Implementations can wrap
// iTunes, MusicBrainz or any other catalog. By depending on this package the
// rest of the application can remain agnostic about the underlying service.
//
// Every Adapter method fails soft: errors, missing data and cancellation all
// surface as an empty slice or a nil result, so one broken service never
// stops the others.
package cover

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Adapter exposes the three operations needed to turn a query into a sized
// image for one service.
type Adapter interface {
	// Name is the service identity stamped on every candidate.
	Name() string

	// SearchAlbumCandidates returns the albums matching q. Both fields
	// empty yields no candidates.
	SearchAlbumCandidates(tok *Token, q SearchQuery) []AlbumCandidate

	// ListPotentialImages enumerates the images of a candidate previously
	// returned by the same adapter. Candidates of other services are
	// rejected.
	ListPotentialImages(tok *Token, c *AlbumCandidate) []PotentialImage

	// ResolveImageDetails determines the pixel dimensions of pi and returns
	// nil on any failure.
	ResolveImageDetails(tok *Token, pi *PotentialImage) *ImageResult
}

// Registry maps service names to adapters. Adapters are registered once at
// startup and looked up case-insensitively afterwards.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds a to the registry replacing any adapter with the same name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.adapters == nil {
		r.adapters = make(map[string]Adapter)
	}
	r.adapters[strings.ToLower(a.Name())] = a
}

// Lookup returns the adapter registered under name.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(name)]
	return a, ok
}

// Names returns the registered service names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		names = append(names, a.Name())
	}
	sort.Strings(names)
	return names
}

// Resolve maps an ordered list of service names onto adapters keeping the
// order. Unknown names produce an error so configuration mistakes are caught
// at startup instead of silently dropping a service.
func (r *Registry) Resolve(names []string) ([]Adapter, error) {
	out := make([]Adapter, 0, len(names))
	seen := make(map[string]struct{})
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		a, ok := r.Lookup(key)
		if !ok {
			return nil, fmt.Errorf("unknown service %q", n)
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}
