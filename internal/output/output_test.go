/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package output

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constSource yields n frames of value v and records what it handed out.
type constSource struct {
	rate    int
	n, pos  int
	v       float64
	closed  bool
	seekErr error
}

func (s *constSource) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= s.n {
		return 0, false
	}
	k := min(len(samples), s.n-s.pos)
	for i := 0; i < k; i++ {
		samples[i] = [2]float64{s.v, s.v}
	}
	s.pos += k
	return k, true
}
func (s *constSource) Err() error      { return nil }
func (s *constSource) SampleRate() int { return s.rate }
func (s *constSource) Seek(d time.Duration) error {
	if s.seekErr != nil {
		return s.seekErr
	}
	s.pos = int(d.Seconds() * float64(s.rate))
	return nil
}
func (s *constSource) Close() error { s.closed = true; return nil }

func TestSinkPlaysToCompletion(t *testing.T) {
	dev := NewNullDevice(1000)
	sink := NewSink(dev)
	assert.True(t, sink.Empty())

	src := &constSource{rate: 1000, n: 250, v: 0.5}
	sink.Append(src)
	assert.False(t, sink.Empty())
	assert.Equal(t, 1, dev.Active())

	dev.Pump(100)
	assert.Equal(t, 100, src.pos)
	assert.False(t, sink.Empty())

	dev.Pump(200)
	dev.Pump(10)
	assert.Equal(t, 250, src.pos)
	assert.True(t, sink.Empty())
	assert.Equal(t, 0, dev.Active())
}

func TestSinkPauseHoldsSource(t *testing.T) {
	dev := NewNullDevice(1000)
	sink := NewSink(dev)
	src := &constSource{rate: 1000, n: 1000, v: 1}
	sink.Append(src)

	dev.Pump(100)
	sink.Pause()
	assert.True(t, sink.IsPaused())
	dev.Pump(300)
	assert.Equal(t, 100, src.pos)
	assert.False(t, sink.Empty())

	sink.Resume()
	assert.False(t, sink.IsPaused())
	dev.Pump(100)
	assert.Equal(t, 200, src.pos)
}

func TestSinkVolume(t *testing.T) {
	dev := NewNullDevice(1000)
	sink := NewSink(dev)
	sink.Append(&constSource{rate: 1000, n: 10, v: 0.8})

	buf := make([][2]float64, 2)
	sink.SetVolume(0.5)
	dev.Lock()
	n, ok := sink.volume.Stream(buf)
	dev.Unlock()
	require.True(t, ok)
	require.Equal(t, 2, n)
	assert.InDelta(t, 0.4, buf[0][0], 1e-9)

	sink.SetVolume(0)
	dev.Lock()
	sink.volume.Stream(buf)
	dev.Unlock()
	assert.Equal(t, 0.0, buf[0][0])

	sink.SetVolume(7)
	dev.Lock()
	sink.volume.Stream(buf)
	dev.Unlock()
	assert.InDelta(t, 0.8, buf[0][0], 1e-9)
}

func TestSinkTrySeek(t *testing.T) {
	dev := NewNullDevice(1000)
	sink := NewSink(dev)
	src := &constSource{rate: 1000, n: 1000, v: 1}

	assert.ErrorIs(t, sink.TrySeek(time.Second), ErrDrained)

	sink.Append(src)
	require.NoError(t, sink.TrySeek(500*time.Millisecond))
	assert.Equal(t, 500, src.pos)

	src.seekErr = errors.New("no cues")
	assert.Error(t, sink.TrySeek(100*time.Millisecond))
	assert.Equal(t, 500, src.pos)

	dev.Pump(600)
	dev.Pump(1)
	assert.ErrorIs(t, sink.TrySeek(0), ErrDrained)
}

func TestSinkSeekDropsResampledBacklog(t *testing.T) {
	dev := NewNullDevice(1000)
	sink := NewSink(dev)
	// half the device rate, so the sink resamples
	src := &constSource{rate: 500, n: 5000, v: 1}
	sink.Append(src)

	dev.Pump(10)
	require.Greater(t, src.pos, 10)

	src.v = 2
	require.NoError(t, sink.TrySeek(time.Second))

	buf := make([][2]float64, 1)
	dev.Lock()
	n, ok := sink.volume.Stream(buf)
	dev.Unlock()
	require.True(t, ok)
	require.Equal(t, 1, n)
	assert.InDelta(t, 2.0, buf[0][0], 1e-9)
}

func TestSinkHaltAndClose(t *testing.T) {
	dev := NewNullDevice(1000)
	sink := NewSink(dev)
	src := &constSource{rate: 1000, n: 1000, v: 1}
	sink.Append(src)
	dev.Pump(10)

	sink.Halt()
	assert.True(t, sink.Empty())
	dev.Pump(100)
	assert.Equal(t, 10, src.pos)
	assert.Equal(t, 0, dev.Active())
	assert.False(t, src.closed)

	require.NoError(t, sink.Close())
	assert.True(t, src.closed)

	// a halted sink refuses new sources
	late := &constSource{rate: 1000, n: 10}
	sink.Append(late)
	assert.True(t, late.closed)
	assert.Equal(t, 0, dev.Active())
}

func TestSinkResamples(t *testing.T) {
	dev := NewNullDevice(48000)
	sink := NewSink(dev)
	src := &constSource{rate: 24000, n: 24000, v: 0.25}
	sink.Append(src)

	dev.Pump(4800)
	// half as many source frames plus the resampler's look-ahead
	assert.GreaterOrEqual(t, src.pos, 2400)
	assert.LessOrEqual(t, src.pos, 2400+1024)
}

func TestNullDeviceRun(t *testing.T) {
	dev := NewNullDevice(1000)
	sink := NewSink(dev)
	src := &constSource{rate: 1000, n: 30, v: 1}
	sink.Append(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dev.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, sink.Empty, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	require.NoError(t, dev.Close())
}
