/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package output

import (
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/samber/lo"
)

var ErrDrained = errors.New("output: sink has finished playing")

// Source is what a sink plays. *engine.Source satisfies it.
type Source interface {
	beep.Streamer
	SampleRate() int
	Seek(d time.Duration) error
	Close() error
}

// Sink is the per-track playback queue on a Device: pause gate, volume and
// resampling in front of one source.
type Sink struct {
	dev    Device
	src    Source
	ctrl   *beep.Ctrl
	volume *effects.Volume

	appended atomic.Bool
	drained  atomic.Bool
	halted   atomic.Bool
}

func NewSink(dev Device) *Sink {
	s := &Sink{dev: dev}
	s.volume = &effects.Volume{Base: 2}
	s.ctrl = &beep.Ctrl{Streamer: s.volume}
	return s
}

// Append starts playing src. A sink plays one source; a halted sink closes
// src instead.
func (s *Sink) Append(src Source) {
	if s.halted.Load() || !s.appended.CompareAndSwap(false, true) {
		src.Close()
		return
	}

	s.dev.Lock()
	s.src = src
	s.volume.Streamer = s.chain(src)
	s.dev.Unlock()

	s.dev.Play(beep.Seq(s.ctrl, beep.Callback(func() { s.drained.Store(true) })))
}

// chain puts a resampler in front of src when its rate differs from the
// device's.
func (s *Sink) chain(src Source) beep.Streamer {
	from := beep.SampleRate(src.SampleRate())
	if from <= 0 || from == s.dev.SampleRate() {
		return src
	}
	return beep.Resample(4, from, s.dev.SampleRate(), src)
}

func (s *Sink) Pause() {
	s.dev.Lock()
	s.ctrl.Paused = true
	s.dev.Unlock()
}

func (s *Sink) Resume() {
	s.dev.Lock()
	s.ctrl.Paused = false
	s.dev.Unlock()
}

func (s *Sink) IsPaused() bool {
	s.dev.Lock()
	defer s.dev.Unlock()
	return s.ctrl.Paused
}

// Empty reports whether everything appended has been played.
func (s *Sink) Empty() bool {
	return s.halted.Load() || !s.appended.Load() || s.drained.Load()
}

// SetVolume takes a linear gain in [0, 1]; 0 mutes.
func (s *Sink) SetVolume(v float64) {
	v = lo.Clamp(v, 0, 1)
	s.dev.Lock()
	defer s.dev.Unlock()
	if v == 0 {
		s.volume.Silent = true
		return
	}
	s.volume.Silent = false
	s.volume.Volume = math.Log2(v)
}

// TrySeek moves the playing source to d. The source keeps its position when
// it refuses. The device lock is held across the seek, which only
// repositions the reader; decoding resumes on the next callback.
func (s *Sink) TrySeek(d time.Duration) error {
	if s.Empty() {
		return ErrDrained
	}
	s.dev.Lock()
	defer s.dev.Unlock()
	if s.src == nil {
		return ErrDrained
	}
	if err := s.src.Seek(d); err != nil {
		return err
	}
	// a fresh resampler drops samples buffered from before the seek
	s.volume.Streamer = s.chain(s.src)
	return nil
}

// Halt detaches the source from the device without touching the file.
func (s *Sink) Halt() {
	if s.halted.Swap(true) {
		return
	}
	s.dev.Lock()
	s.ctrl.Streamer = nil
	s.dev.Unlock()
}

// Close halts the sink and releases its source.
func (s *Sink) Close() error {
	s.Halt()
	s.dev.Lock()
	src := s.src
	s.src = nil
	s.dev.Unlock()
	if src != nil {
		return src.Close()
	}
	return nil
}
