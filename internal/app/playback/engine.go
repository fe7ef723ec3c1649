package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackdeck/internal/app/session/state"
	"github.com/osa030/trackdeck/internal/domain/track"
	"github.com/osa030/trackdeck/internal/infra/audio"
)

// Errors
var (
	ErrResourceAcquisitionFailed = errors.New("audio resource acquisition failed")
	ErrNoResource                = errors.New("no audio resource bound")
	ErrNoQueue                   = errors.New("no queue open")
	ErrClosed                    = errors.New("engine closed")

	errStaleResourceDiscarded = errors.New("stale audio resource discarded")
)

// QueueStore is the part of the queue store the engine depends on.
type QueueStore interface {
	Snapshot() state.Snapshot
	Next(id int64) (track.Track, bool)
	SetActive(t track.Track) error
	SetActiveIf(expected int64, t track.Track) error
	Subscribe(fn func(state.Change)) func()
}

// Config holds engine configuration.
type Config struct {
	LoadTimeout time.Duration // Zero disables the acquisition timeout
	EventBuffer int           // Capacity of the event channel
}

// Engine keeps exactly one audio resource bound to the store's active track.
//
// Every input (store change, load completion, status callback, command) is applied
// under mu. Resource methods and store mutations are always invoked without mu held.
type Engine struct {
	mu sync.Mutex

	store  QueueStore
	loader audio.Loader
	config Config

	// Session
	state      State
	track      *track.Track // Track loading or loaded
	album      *track.Album // Queue album at load start
	resource   audio.Resource
	generation uint64 // Bumped on every load start and release
	position   time.Duration
	length     trackLength
	err        error

	lastRevision uint64
	releaseDone  chan struct{} // Closed once the latest scheduled release was issued

	// Events
	eventCh chan Event

	// Lifecycle
	ctx         context.Context
	cancel      context.CancelFunc
	loads       sync.WaitGroup
	unsubscribe func()
	closed      bool
}

// New creates an engine observing store and synchronizes it with the store's
// current contents.
func New(store QueueStore, loader audio.Loader, config Config) *Engine {
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	released := make(chan struct{})
	close(released)

	e := &Engine{
		store:       store,
		loader:      loader,
		config:      config,
		state:       StateIdle,
		releaseDone: released,
		eventCh:     make(chan Event, config.EventBuffer),
		ctx:         ctx,
		cancel:      cancel,
	}

	e.unsubscribe = store.Subscribe(e.onStoreChange)
	e.onStoreChange(state.Change{Kind: state.ChangeOpened, Snapshot: store.Snapshot()})
	return e
}

// Events returns the event channel. It is closed by Close.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// Snapshot returns the observable state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		State:      e.state,
		Track:      copyTrack(e.track),
		Position:   e.position,
		Duration:   e.length.Value(),
		Playing:    e.state == StatePlaying,
		Err:        e.err,
		Generation: e.generation,
	}
}

// Play resumes the bound resource. No-op if already playing.
func (e *Engine) Play(ctx context.Context) error {
	e.mu.Lock()
	res, gen, err := e.boundLocked()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if e.state == StatePlaying {
		e.mu.Unlock()
		return nil
	}
	e.state = StatePlaying
	e.sendEventLocked(EventStateChanged)
	e.mu.Unlock()

	if err := res.Play(ctx); err != nil {
		return e.commandFailed(gen, errors.Wrap(err, "failed to play"))
	}
	return nil
}

// Pause pauses the bound resource. No-op if already paused.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	res, gen, err := e.boundLocked()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if e.state == StatePaused {
		e.mu.Unlock()
		return nil
	}
	e.state = StatePaused
	e.sendEventLocked(EventStateChanged)
	e.mu.Unlock()

	if err := res.Pause(ctx); err != nil {
		return e.commandFailed(gen, errors.Wrap(err, "failed to pause"))
	}
	return nil
}

// Seek moves the play-head to target, clamped to [0, duration]. The reported
// position is updated before the resource confirms.
func (e *Engine) Seek(ctx context.Context, target time.Duration) error {
	e.mu.Lock()
	res, gen, err := e.boundLocked()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	target = e.length.Clamp(target)
	e.position = target
	e.sendEventLocked(EventProgress)
	e.mu.Unlock()

	if err := res.SeekTo(ctx, target); err != nil {
		return e.commandFailed(gen, errors.Wrapf(err, "failed to seek to %v", target))
	}
	return nil
}

// SkipNext advances to the track after the active one, wrapping at the end.
// Works in any state as long as a queue is open.
func (e *Engine) SkipNext(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.mu.Unlock()

	snap := e.store.Snapshot()
	if !snap.Open || snap.Active == nil {
		return ErrNoQueue
	}
	return e.advance(snap.Active.ID, 0, false)
}

// Close tears the engine down: unsubscribes from the store, releases the
// resource, waits for in-flight acquisitions and closes the event channel.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cancel()
	after := e.releaseLocked()
	e.state = StateIdle
	e.track = nil
	e.album = nil
	e.position = 0
	e.length.Reset()
	e.err = nil
	e.mu.Unlock()

	e.unsubscribe()
	after()
	e.loads.Wait()
	close(e.eventCh)

	zlog.Debug().Msg("playback: engine closed")
}

// onStoreChange applies a store change. Runs on the mutating goroutine.
func (e *Engine) onStoreChange(change state.Change) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	snap := change.Snapshot
	if snap.Revision != 0 && snap.Revision <= e.lastRevision {
		e.mu.Unlock()
		zlog.Debug().Msgf("playback: ignoring store revision %d (last %d)", snap.Revision, e.lastRevision)
		return
	}
	e.lastRevision = snap.Revision

	var after func()
	switch {
	case !snap.Open || snap.Active == nil:
		after = e.idleLocked()
	case e.track != nil && e.track.ID == snap.Active.ID && e.state != StateIdle && e.state != StateError:
		// Same track already bound or loading.
		after = func() {}
	default:
		after = e.beginLoadLocked(*snap.Active, snap.Album)
	}
	e.mu.Unlock()

	after()
}

// beginLoadLocked enters Loading for t. The returned function must be called
// without e.mu held; it releases the previous resource and starts the acquisition.
func (e *Engine) beginLoadLocked(t track.Track, album *track.Album) func() {
	release := e.releaseLocked()
	e.generation++
	gen := e.generation

	e.track = &t
	e.album = copyAlbum(album)
	e.state = StateLoading
	e.position = 0
	e.length.Seed(t.Duration)
	e.err = nil
	e.sendEventLocked(EventLoadStarted)

	zlog.Info().Msgf("playback: loading track %d %q (generation %d)", t.ID, t.Title, gen)

	e.loads.Add(1)
	return func() {
		go func() {
			defer e.loads.Done()
			release()
			e.load(gen, t)
		}()
	}
}

// load acquires the resource for t and hands it to onLoaded.
func (e *Engine) load(gen uint64, t track.Track) {
	if !e.isCurrent(gen) {
		zlog.Debug().Msgf("playback: skipping acquisition for superseded generation %d", gen)
		return
	}

	ctx := e.ctx
	if e.config.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.LoadTimeout)
		defer cancel()
	}

	res, err := e.loader.Load(ctx, t, func(s audio.Status) {
		e.onStatus(gen, s)
	})
	e.onLoaded(gen, t, res, err)
}

// onLoaded installs a freshly acquired resource, or discards it when superseded.
func (e *Engine) onLoaded(gen uint64, t track.Track, res audio.Resource, err error) {
	e.mu.Lock()
	if e.closed || gen != e.generation {
		e.mu.Unlock()
		if res != nil {
			zlog.Debug().Msgf("playback: %v: track %d generation %d", errStaleResourceDiscarded, t.ID, gen)
			releaseResource(res)
		}
		return
	}

	if err != nil {
		failure := errors.Mark(errors.Wrapf(err, "failed to load track %d", t.ID), ErrResourceAcquisitionFailed)
		after := e.failLocked(failure)
		e.mu.Unlock()
		after()
		return
	}

	status := res.Status()
	e.resource = res
	e.length.Report(status.Duration)
	e.position = e.length.Clamp(status.Position)
	e.state = StatePlaying
	e.sendEventLocked(EventLoaded)
	e.mu.Unlock()

	zlog.Info().Msgf("playback: loaded track %d (duration %v)", t.ID, status.Duration)

	// Autoplay on load.
	if err := res.Play(e.ctx); err != nil {
		_ = e.commandFailed(gen, errors.Wrap(err, "failed to start playback"))
		return
	}

	// A Pause applied while autoplay was starting must win over it.
	e.mu.Lock()
	paused := !e.closed && gen == e.generation && e.state == StatePaused
	e.mu.Unlock()
	if paused {
		if err := res.Pause(e.ctx); err != nil {
			_ = e.commandFailed(gen, errors.Wrap(err, "failed to pause"))
		}
	}
}

// onStatus applies a resource status callback for generation gen.
func (e *Engine) onStatus(gen uint64, s audio.Status) {
	e.mu.Lock()
	if e.closed || gen != e.generation || e.resource == nil {
		e.mu.Unlock()
		return
	}

	if s.Err != nil {
		failure := errors.Mark(errors.Wrap(s.Err, "playback interrupted"), ErrResourceAcquisitionFailed)
		after := e.failLocked(failure)
		e.mu.Unlock()
		after()
		return
	}

	e.length.Report(s.Duration)
	e.position = e.length.Clamp(s.Position)

	if !s.DidJustFinish {
		e.sendEventLocked(EventProgress)
		e.mu.Unlock()
		return
	}

	finished := e.track.ID
	e.position = e.length.Value()
	e.state = StatePaused
	e.sendEventLocked(EventTrackFinished)
	e.mu.Unlock()

	if err := e.advance(finished, gen, true); err != nil {
		zlog.Warn().Msgf("playback: auto-advance failed: %v", err)
	}
}

// advance moves from track from to the element after it, wrapping at the end.
// Nothing moves once another track has become active. With onlyGen set, nothing
// happens unless gen is still the current generation.
func (e *Engine) advance(from int64, gen uint64, onlyGen bool) error {
	if onlyGen && !e.isCurrent(gen) {
		return nil
	}

	next, ok := e.store.Next(from)
	if !ok {
		return ErrNoQueue
	}

	if next.ID != from {
		zlog.Debug().Msgf("playback: advancing from track %d to %d", from, next.ID)
		err := e.store.SetActiveIf(from, next)
		if errors.Is(err, state.ErrActiveChanged) {
			zlog.Debug().Msgf("playback: not advancing from track %d: %v", from, err)
			return nil
		}
		return err
	}

	// Single-track queue wraps onto itself; the bound track is reloaded directly.
	e.mu.Lock()
	if e.closed || (onlyGen && gen != e.generation) || e.track == nil || e.track.ID != from {
		e.mu.Unlock()
		return nil
	}
	after := e.beginLoadLocked(next, e.album)
	e.mu.Unlock()

	after()
	return nil
}

// commandFailed fails the session of generation gen after a resource command error.
// Context errors belong to the caller and leave the session alone. Errors from a
// session that has since been replaced are dropped.
func (e *Engine) commandFailed(gen uint64, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	e.mu.Lock()
	if e.closed || gen != e.generation {
		e.mu.Unlock()
		zlog.Debug().Msgf("playback: ignoring error from superseded generation %d: %v", gen, err)
		return nil
	}
	after := e.failLocked(errors.Mark(err, ErrResourceAcquisitionFailed))
	e.mu.Unlock()

	after()
	return err
}

// failLocked releases the session and enters Error. The returned function must be
// called without e.mu held.
func (e *Engine) failLocked(err error) func() {
	zlog.Warn().Msgf("playback: %v", err)

	after := e.releaseLocked()
	e.generation++
	e.state = StateError
	e.err = err
	e.sendEventLocked(EventLoadFailed)
	return after
}

// idleLocked releases the session and resets the transport. The returned function
// must be called without e.mu held.
func (e *Engine) idleLocked() func() {
	if e.state == StateIdle && e.resource == nil {
		return func() {}
	}

	after := e.releaseLocked()
	e.generation++
	e.state = StateIdle
	e.track = nil
	e.album = nil
	e.position = 0
	e.length.Reset()
	e.err = nil
	e.sendEventLocked(EventReleased)

	zlog.Info().Msg("playback: session released")
	return after
}

// releaseLocked detaches the current resource and schedules its release after
// every earlier release. The returned function blocks until the release is issued.
func (e *Engine) releaseLocked() func() {
	res := e.resource
	e.resource = nil

	prev := e.releaseDone
	done := make(chan struct{})
	e.releaseDone = done

	return func() {
		<-prev
		releaseResource(res)
		close(done)
	}
}

// boundLocked returns the bound resource and its generation.
func (e *Engine) boundLocked() (audio.Resource, uint64, error) {
	if e.closed {
		return nil, 0, ErrClosed
	}
	if e.resource == nil {
		return nil, 0, ErrNoResource
	}
	return e.resource, e.generation, nil
}

func (e *Engine) isCurrent(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && gen == e.generation
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (e *Engine) sendEventLocked(typ EventType) {
	if e.closed {
		return
	}
	ev := Event{
		Type:       typ,
		Track:      copyTrack(e.track),
		Album:      copyAlbum(e.album),
		State:      e.state,
		Position:   e.position,
		Duration:   e.length.Value(),
		Playing:    e.state == StatePlaying,
		Err:        e.err,
		Generation: e.generation,
	}
	select {
	case e.eventCh <- ev:
	default:
		// Channel full, drop event
	}
}

func releaseResource(res audio.Resource) {
	if res == nil {
		return
	}
	if err := res.Release(); err != nil {
		zlog.Warn().Msgf("playback: failed to release resource: %v", err)
	}
}

func copyTrack(t *track.Track) *track.Track {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyAlbum(a *track.Album) *track.Album {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
