package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/trackdeck/internal/domain/track"
)

const duplicateTrackFilterName = "duplicate_track_filter"

// DuplicateTrackConfig represents the configuration for DuplicateTrackFilter.
type DuplicateTrackConfig struct {
	// CollapseVersions also drops remasters and alternate versions of a title
	// that is already queued.
	CollapseVersions bool `yaml:"collapse_versions" mapstructure:"collapse_versions"`
}

// DuplicateTrackFilter keeps track IDs unique within a queue.
// With collapse_versions it also detects:
// - Remasters ("- 2011 Remaster", "(Remastered)")
// - Alternate versions ("(Single Version)", "(Radio Edit)", "- Live")
type DuplicateTrackFilter struct {
	config DuplicateTrackConfig
}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return duplicateTrackFilterName
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Drops repeated track IDs (always enabled) and, with collapse_versions, remasters of queued titles"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(settings map[string]any) error {
	var config DuplicateTrackConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	f.config = config
	return nil
}

// Check checks if the track duplicates an admitted one.
func (f *DuplicateTrackFilter) Check(ctx context.Context, t track.Track, admitted []track.Track) Result {
	name := ""
	if f.config.CollapseVersions {
		name = normalizeTrackName(t.Title)
	}

	for _, queued := range admitted {
		if queued.ID == t.ID {
			return Reject("duplicate_track")
		}
		if f.config.CollapseVersions && name != "" && normalizeTrackName(queued.Title) == name {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Deluxe Remaster)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Remaster 2009]"
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
		regexp.MustCompile(`\s*\(live\)`),              // "(Live)"
		regexp.MustCompile(`\s*-\s*live\b.*$`),         // "- Live at Wembley"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
	}
	spaces = regexp.MustCompile(`\s+`)
)

// normalizeTrackName removes remaster and version details from a title.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = spaces.ReplaceAllString(normalized, " ")
	return strings.TrimRight(normalized, " -")
}

func init() {
	Register(duplicateTrackFilterName, func() Filter {
		return NewDuplicateTrackFilter()
	})
}
