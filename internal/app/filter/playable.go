package filter

import (
	"context"
	"net/url"

	"github.com/osa030/trackdeck/internal/domain/track"
)

const playableFilterName = "playable_filter"

// PlayableFilter rejects tracks without a usable audio locator.
type PlayableFilter struct{}

// NewPlayableFilter creates a new playable filter.
func NewPlayableFilter() *PlayableFilter {
	return &PlayableFilter{}
}

func (f *PlayableFilter) Name() string {
	return playableFilterName
}

func (f *PlayableFilter) Description() string {
	return "Rejects tracks whose audio URL is missing or not http(s)/file (always enabled)"
}

func (f *PlayableFilter) ReturnCodes() []string {
	return []string{"unplayable"}
}

func (f *PlayableFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *PlayableFilter) Check(ctx context.Context, t track.Track, admitted []track.Track) Result {
	if t.ID == 0 || t.URL == "" {
		return Reject("unplayable")
	}
	u, err := url.Parse(t.URL)
	if err != nil {
		return Reject("unplayable")
	}
	switch u.Scheme {
	case "http", "https", "file":
		return Accept()
	default:
		return Reject("unplayable")
	}
}

func init() {
	Register(playableFilterName, func() Filter {
		return NewPlayableFilter()
	})
}
