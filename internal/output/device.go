/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package output

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// Device is the process wide audio output. Lock/Unlock guard state that the
// audio callback reads.
type Device interface {
	SampleRate() beep.SampleRate
	Play(s beep.Streamer)
	Lock()
	Unlock()
	Close() error
}

// ====================================================================
// SPEAKER
// ====================================================================

type speakerDevice struct {
	rate beep.SampleRate
}

var (
	speakerOnce sync.Once
	speakerDev  *speakerDevice
	speakerErr  error
)

// Speaker opens the default sound card. The speaker package is a singleton,
// so later calls return the first device.
func Speaker(rate int, buffer time.Duration) (Device, error) {
	speakerOnce.Do(func() {
		sr := beep.SampleRate(rate)
		if err := speaker.Init(sr, sr.N(buffer)); err != nil {
			speakerErr = fmt.Errorf("open audio device: %w", err)
			return
		}
		speakerDev = &speakerDevice{rate: sr}
	})
	if speakerErr != nil {
		return nil, speakerErr
	}
	return speakerDev, nil
}

func (d *speakerDevice) SampleRate() beep.SampleRate { return d.rate }
func (d *speakerDevice) Play(s beep.Streamer)        { speaker.Play(s) }
func (d *speakerDevice) Lock()                       { speaker.Lock() }
func (d *speakerDevice) Unlock()                     { speaker.Unlock() }

func (d *speakerDevice) Close() error {
	speaker.Clear()
	return nil
}

// ====================================================================
// NULL
// ====================================================================

// NullDevice mixes like the speaker but throws the samples away. Pump drives
// it by hand; Run drives it in real time for headless playback.
type NullDevice struct {
	mu    sync.Mutex
	rate  beep.SampleRate
	mixer beep.Mixer
	buf   [][2]float64
}

func NewNullDevice(rate int) *NullDevice {
	return &NullDevice{rate: beep.SampleRate(rate)}
}

func (d *NullDevice) SampleRate() beep.SampleRate { return d.rate }

func (d *NullDevice) Play(s beep.Streamer) {
	d.mu.Lock()
	d.mixer.Add(s)
	d.mu.Unlock()
}

func (d *NullDevice) Lock()   { d.mu.Lock() }
func (d *NullDevice) Unlock() { d.mu.Unlock() }

// Pump consumes n frames from every playing streamer.
func (d *NullDevice) Pump(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cap(d.buf) < n {
		d.buf = make([][2]float64, n)
	}
	d.mixer.Stream(d.buf[:n])
}

// Active reports how many streamers have not drained yet.
func (d *NullDevice) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mixer.Len()
}

func (d *NullDevice) Run(ctx context.Context) {
	const tick = 10 * time.Millisecond
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.Pump(d.rate.N(tick))
		}
	}
}

func (d *NullDevice) Close() error {
	d.mu.Lock()
	d.mixer.Clear()
	d.mu.Unlock()
	return nil
}
