package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trackdeck/internal/infra/config"
)

func TestNewLoaderFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		audio    config.AudioConfig
		wantType any
		wantErr  bool
	}{
		{
			name:     "clock with defaults",
			audio:    config.AudioConfig{Backend: "clock"},
			wantType: &ClockLoader{},
		},
		{
			name:     "clock with speed",
			audio:    config.AudioConfig{Backend: "clock", Settings: map[string]any{"speed": 2}},
			wantType: &ClockLoader{},
		},
		{
			name:    "clock with invalid speed",
			audio:   config.AudioConfig{Backend: "clock", Settings: map[string]any{"speed": 10}},
			wantErr: true,
		},
		{
			name: "decoder",
			audio: config.AudioConfig{Backend: "decoder", Settings: map[string]any{
				"max_bytes":  1024,
				"user_agent": "agent",
			}},
			wantType: &DecoderLoader{},
		},
		{
			name:    "decoder with invalid timeout",
			audio:   config.AudioConfig{Backend: "decoder", Settings: map[string]any{"fetch_timeout_ms": 5}},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			audio:   config.AudioConfig{Backend: "tape"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Playback: config.PlaybackConfig{ProgressIntervalMs: 100},
				Audio:    tt.audio,
			}

			loader, err := NewLoaderFromConfig(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, loader)
		})
	}
}

func TestNewLoaderFromConfig_DecoderSettings(t *testing.T) {
	cfg := &config.Config{
		Playback: config.PlaybackConfig{ProgressIntervalMs: 100},
		Audio:    config.AudioConfig{Backend: "decoder", Settings: map[string]any{"max_bytes": 2048}},
	}

	loader, err := NewLoaderFromConfig(cfg)
	require.NoError(t, err)

	dl, ok := loader.(*DecoderLoader)
	require.True(t, ok)
	assert.Equal(t, int64(2048), dl.config.MaxBytes)
	assert.Equal(t, "trackdeck", dl.config.UserAgent)
	assert.Equal(t, 1.0, dl.config.Clock.Speed)
}
