package audio

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackdeck/internal/infra/config"
)

// ClockSettings are the settings of the clock backend.
type ClockSettings struct {
	Speed float64 `yaml:"speed" mapstructure:"speed" default:"1.0" validate:"gt=0,lte=4"`
}

// DecoderSettings are the settings of the decoder backend.
type DecoderSettings struct {
	Speed          float64 `yaml:"speed" mapstructure:"speed" default:"1.0" validate:"gt=0,lte=4"`
	MaxBytes       int64   `yaml:"max_bytes" mapstructure:"max_bytes" default:"52428800" validate:"gt=0"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent" default:"trackdeck"`
	FetchTimeoutMs int     `yaml:"fetch_timeout_ms" mapstructure:"fetch_timeout_ms" default:"30000" validate:"gte=1000"`
}

// NewLoaderFromConfig creates the loader selected by audio.backend.
func NewLoaderFromConfig(cfg *config.Config) (Loader, error) {
	interval := cfg.ProgressInterval()
	settings := cfg.Audio.Settings

	zlog.Debug().Msgf("creating audio loader: backend=%s settings=%+v", cfg.Audio.Backend, settings)
	switch cfg.Audio.Backend {
	case "clock":
		var s ClockSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, errors.Wrap(err, "clock backend")
		}
		return NewClockLoader(ClockConfig{Interval: interval, Speed: s.Speed}), nil

	case "decoder":
		var s DecoderSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, errors.Wrap(err, "decoder backend")
		}
		return NewDecoderLoader(DecoderConfig{
			Clock:     ClockConfig{Interval: interval, Speed: s.Speed},
			MaxBytes:  s.MaxBytes,
			UserAgent: s.UserAgent,
			Client:    &http.Client{Timeout: time.Duration(s.FetchTimeoutMs) * time.Millisecond},
		}), nil

	default:
		return nil, errors.Newf("unsupported audio backend: %s", cfg.Audio.Backend)
	}
}

func decodeSettings(settings map[string]any, out any) error {
	if len(settings) > 0 {
		if err := mapstructure.WeakDecode(settings, out); err != nil {
			return errors.Wrap(err, "failed to decode settings")
		}
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
