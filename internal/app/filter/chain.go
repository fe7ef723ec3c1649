package filter

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/osa030/trackdeck/internal/domain/track"
)

// Settings is the configuration of one filter.
type Settings struct {
	Enabled  bool
	Settings map[string]any
}

// Rejection records a track the chain dropped.
type Rejection struct {
	Track track.Track
	Code  string
}

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromConfig builds a chain from configured filters. The playable and
// duplicate filters always run first since a queue must hold unique playable
// tracks; the others run in name order.
func NewChainFromConfig(cfg map[string]Settings) (*Chain, error) {
	names := make([]string, 0, len(cfg))
	for name, s := range cfg {
		if s.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	chain := NewChain()
	chain.Add(NewPlayableFilter())
	dup := NewDuplicateTrackFilter()
	if err := dup.ValidateConfig(cfg[duplicateTrackFilterName].Settings); err != nil {
		return nil, errors.Wrapf(err, "filter %s", duplicateTrackFilterName)
	}
	chain.Add(dup)

	for _, name := range names {
		if name == playableFilterName || name == duplicateTrackFilterName {
			continue
		}
		factory, ok := registry[name]
		if !ok {
			return nil, errors.Newf("unknown filter %q", name)
		}
		f := factory()
		if err := f.ValidateConfig(cfg[name].Settings); err != nil {
			return nil, errors.Wrapf(err, "filter %s", name)
		}
		chain.Add(f)
	}
	return chain, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the track.
func (c *Chain) Execute(ctx context.Context, t track.Track, admitted []track.Track) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, t, admitted)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Apply filters tracks in order and returns the admitted ones together with
// the rejections.
func (c *Chain) Apply(ctx context.Context, tracks []track.Track) ([]track.Track, []Rejection) {
	admitted := make([]track.Track, 0, len(tracks))
	var rejected []Rejection
	for _, t := range tracks {
		result := c.Execute(ctx, t, admitted)
		if !result.Accepted {
			rejected = append(rejected, Rejection{Track: t, Code: result.Code})
			continue
		}
		admitted = append(admitted, t)
	}
	return admitted, rejected
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
