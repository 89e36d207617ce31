package prices

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// MultiSource routes every id to the first source that supports it, in order.
type MultiSource struct {
	sources []Source
}

func NewMultiSource(sources ...Source) *MultiSource {
	var kept []Source
	for _, s := range sources {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSource{sources: kept}
}

func (m *MultiSource) Name() string { return "multi" }

func (m *MultiSource) Supports(id string) bool {
	return m.route(id) != nil
}

func (m *MultiSource) route(id string) Source {
	for _, s := range m.sources {
		if s.Supports(id) {
			return s
		}
	}
	return nil
}

// FetchQuotes queries each involved source concurrently and merges the results.
// A failing source does not hide quotes from the others; errors are joined.
func (m *MultiSource) FetchQuotes(ctx context.Context, ids []string) (map[string]Quote, error) {
	groups := make(map[Source][]string)
	var order []Source
	var unrouted []string
	for _, id := range ids {
		s := m.route(id)
		if s == nil {
			unrouted = append(unrouted, id)
			continue
		}
		if _, ok := groups[s]; !ok {
			order = append(order, s)
		}
		groups[s] = append(groups[s], id)
	}

	var mu sync.Mutex
	var errs []error
	out := make(map[string]Quote, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range order {
		g.Go(func() error {
			quotes, err := s.FetchQuotes(gctx, groups[s])
			mu.Lock()
			defer mu.Unlock()
			for id, q := range quotes {
				out[id] = q
			}
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(unrouted) > 0 {
		errs = append(errs, &NotFoundError{IDs: unrouted})
	}
	return out, errors.Join(errs...)
}
