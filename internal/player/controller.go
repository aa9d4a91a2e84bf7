/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package player

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"impulse/internal/container"
	"impulse/internal/engine"
	"impulse/internal/filesystem"
	"impulse/internal/log"
	"impulse/internal/metadata"
	"impulse/internal/output"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var (
	ErrEmptyFile  = errors.New("player: file is empty")
	ErrSeekFailed = errors.New("player: seek failed")
)

// Opener turns an opened file into a playable source and takes ownership of f.
type Opener func(f container.MediaSource, path string) (output.Source, error)

// Controller owns the current track, its sink and the position clock.
//
// Every field below mu is guarded by it. mu is taken before the device lock
// and is never held across file I/O or decoding.
type Controller struct {
	dev       output.Device
	fs        afero.Fs
	extractor metadata.Extractor
	open      Opener
	now       func() time.Time

	extractorSet bool

	mu       sync.Mutex
	sink     *output.Sink
	track    mo.Option[string]
	metadata mo.Option[metadata.TrackMetadata]
	clock    clock
	volume   float64
	session  uint64
}

type Option func(*Controller)

func WithFs(fs afero.Fs) Option {
	return func(c *Controller) { c.fs = fs }
}

// WithExtractor replaces the tag reader; nil disables metadata.
func WithExtractor(e metadata.Extractor) Option {
	return func(c *Controller) {
		c.extractor = e
		c.extractorSet = true
	}
}

func WithOpener(o Opener) Option {
	return func(c *Controller) { c.open = o }
}

func WithEngine(opts engine.Options) Option {
	return WithOpener(func(f container.MediaSource, path string) (output.Source, error) {
		src, err := engine.Open(f, path, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	})
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithVolume(v float64) Option {
	return func(c *Controller) { c.volume = lo.Clamp(v, 0, 1) }
}

func New(dev output.Device, opts ...Option) *Controller {
	c := &Controller{
		dev:    dev,
		fs:     filesystem.API(),
		now:    time.Now,
		volume: 1,
	}
	WithEngine(engine.DefaultOptions())(c)

	for _, opt := range opts {
		opt(c)
	}
	if !c.extractorSet {
		c.extractor = metadata.NewExtractor(c.fs)
	}
	return c
}

// Play replaces whatever is playing with path. On error nothing changes.
func (c *Controller) Play(path string) error {
	entry := log.WithFields(logrus.Fields{"path": path})

	// 1. Open and reject empty files
	f, err := c.fs.Open(path)
	if err != nil {
		entry.Errorf("open failed: %v", err)
		return fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		f.Close()
		entry.Warn("refusing empty file")
		return fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	// 2. Decode session, built before taking the lock
	src, err := c.open(f, path)
	if err != nil {
		entry.Errorf("no playable stream: %v", err)
		return err
	}

	// 3. Metadata is optional
	md := mo.None[metadata.TrackMetadata]()
	if c.extractor != nil {
		if m, err := c.extractor.Extract(path); err == nil {
			md = mo.Some(m)
		} else {
			entry.Debugf("metadata unavailable: %v", err)
		}
	}

	// 4. Swap sinks and reset the clock together
	sink := output.NewSink(c.dev)

	c.mu.Lock()
	old := c.sink
	if old != nil {
		old.Halt()
	}
	sink.SetVolume(c.volume)
	sink.Append(src)
	c.sink = sink
	c.track = mo.Some(path)
	c.metadata = md
	c.clock.restart(c.now())
	c.session++
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	entry.Info("playing")
	return nil
}

// Pause is a no-op unless something is playing.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sink == nil || c.sink.IsPaused() {
		return
	}
	c.clock.freeze(c.now())
	c.sink.Pause()
}

// Resume is a no-op unless paused.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sink == nil || !c.sink.IsPaused() {
		return
	}
	c.clock.resume(c.now())
	c.sink.Resume()
}

func (c *Controller) TogglePause() {
	if c.IsPaused() {
		c.Resume()
		return
	}
	c.Pause()
}

// Stop drops the sink, the track and all position state.
func (c *Controller) Stop() {
	c.mu.Lock()
	sink := c.sink
	c.sink = nil
	c.track = mo.None[string]()
	c.metadata = mo.None[metadata.TrackMetadata]()
	c.clock.reset()
	c.session++
	c.mu.Unlock()

	if sink != nil {
		sink.Close()
	}
}

func (c *Controller) SeekForward(d time.Duration) error {
	return c.seek(d)
}

func (c *Controller) SeekBackward(d time.Duration) error {
	return c.seek(-d)
}

// seek moves by delta from the current position, clamped at zero. A
// refused seek leaves playback and bookkeeping where they were.
func (c *Controller) seek(delta time.Duration) error {
	c.mu.Lock()
	sink := c.sink
	if sink == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: nothing is playing", ErrSeekFailed)
	}
	pos := c.clock.position(c.now(), sink.IsPaused())
	session := c.session
	c.mu.Unlock()

	target := max(pos+delta, 0)
	if err := sink.TrySeek(target); err != nil {
		log.WithFields(logrus.Fields{"target": target}).Infof("seek rejected: %v", err)
		return fmt.Errorf("%w: %w", ErrSeekFailed, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == session {
		c.clock.jump(c.now(), target, sink.IsPaused())
	}
	return nil
}

// SetVolume clamps v to [0, 1]; the value carries over to later tracks.
func (c *Controller) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = lo.Clamp(v, 0, 1)
	if c.sink != nil {
		c.sink.SetVolume(c.volume)
	}
}

func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// PositionAndProgress returns elapsed time and, when the duration is known,
// progress in [0, 1].
func (c *Controller) PositionAndProgress() (time.Duration, mo.Option[float64]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *Controller) positionLocked() (time.Duration, mo.Option[float64]) {
	paused := c.sink != nil && c.sink.IsPaused()
	pos := c.clock.position(c.now(), paused)

	md, ok := c.metadata.Get()
	if !ok || md.Duration <= 0 {
		return pos, mo.None[float64]()
	}
	return pos, mo.Some(lo.Clamp(pos.Seconds()/md.Duration.Seconds(), 0, 1))
}

func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink != nil && !c.sink.Empty() && !c.sink.IsPaused()
}

func (c *Controller) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink != nil && c.sink.IsPaused()
}

// IsFinished is true with no sink or once the sink has drained.
func (c *Controller) IsFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink == nil || c.sink.Empty()
}

func (c *Controller) CurrentTrack() mo.Option[string] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.track
}

func (c *Controller) CurrentMetadata() mo.Option[metadata.TrackMetadata] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata
}

type State string

const (
	StateIdle     State = "idle"
	StatePlaying  State = "playing"
	StatePaused   State = "paused"
	StateFinished State = "finished"
)

// Status is a consistent snapshot for pollers.
type Status struct {
	State    State         `json:"state"`
	Track    string        `json:"track,omitempty"`
	Position time.Duration `json:"position"`
	Duration time.Duration `json:"duration,omitempty"`
	Progress *float64      `json:"progress,omitempty"`
	Volume   float64       `json:"volume"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: StateIdle, Volume: c.volume, Track: c.track.OrEmpty()}
	switch {
	case c.sink == nil:
	case c.sink.Empty():
		st.State = StateFinished
	case c.sink.IsPaused():
		st.State = StatePaused
	default:
		st.State = StatePlaying
	}

	pos, progress := c.positionLocked()
	st.Position = pos
	if p, ok := progress.Get(); ok {
		st.Progress = &p
	}
	if md, ok := c.metadata.Get(); ok {
		st.Duration = md.Duration
	}
	return st
}
