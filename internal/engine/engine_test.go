/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package engine

import (
	"errors"
	"io"
	"testing"
	"time"

	"impulse/internal/codec"
	"impulse/internal/container"
	"impulse/internal/fixture"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedReader replays a fixed packet list; packets whose Data is "bad"
// fail to decode with the test decoder.
type scriptedReader struct {
	packets  []*container.Packet
	pos      int
	seekErr  error
	seekedTo []uint64
	closed   bool
}

func (r *scriptedReader) Format() string { return "scripted" }
func (r *scriptedReader) Tracks() []container.Track {
	return []container.Track{{ID: 1, Params: container.CodecParams{SampleRate: 1000, Channels: 2}}}
}
func (r *scriptedReader) DefaultTrack() (container.Track, bool) { return r.Tracks()[0], true }
func (r *scriptedReader) NextPacket() (*container.Packet, error) {
	if r.pos >= len(r.packets) {
		return nil, io.EOF
	}
	p := r.packets[r.pos]
	r.pos++
	return p, nil
}
func (r *scriptedReader) Seek(_ uint32, ts uint64) (uint64, error) {
	if r.seekErr != nil {
		return 0, r.seekErr
	}
	r.seekedTo = append(r.seekedTo, ts)
	if len(r.packets) == 0 {
		r.pos = 0
		return ts, nil
	}
	// land on the first packet of the block holding ts
	r.pos = 0
	for i, p := range r.packets {
		if p.Timestamp > ts {
			break
		}
		if i == 0 || p.Timestamp != r.packets[i-1].Timestamp {
			r.pos = i
		}
	}
	return r.packets[r.pos].Timestamp, nil
}
func (r *scriptedReader) Close() error { r.closed = true; return nil }

// valueDecoder emits two frames per packet, both equal to the first data byte.
type valueDecoder struct{ resets int }

func (d *valueDecoder) Decode(p *container.Packet) ([][2]float64, error) {
	if string(p.Data) == "bad" {
		return nil, errors.New("corrupt frame")
	}
	v := float64(p.Data[0])
	return [][2]float64{{v, v}, {v, v}}, nil
}
func (d *valueDecoder) Reset() { d.resets++ }

func pkt(track uint32, ts uint64, data string) *container.Packet {
	return &container.Packet{TrackID: track, Timestamp: ts, Data: []byte(data)}
}

func drain(s *Source) []float64 {
	var out []float64
	for {
		f, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, f[0])
	}
}

func newScripted(packets ...*container.Packet) (*Source, *scriptedReader, *valueDecoder) {
	r := &scriptedReader{packets: packets}
	d := &valueDecoder{}
	track, _ := r.DefaultTrack()
	return NewSource(r, track, d, 32), r, d
}

func TestSourceSkipsOtherTracksAndCorruptPackets(t *testing.T) {
	s, _, _ := newScripted(
		pkt(1, 0, "\x01"),
		pkt(2, 0, "\x09"),
		pkt(1, 2, "bad"),
		pkt(1, 4, "\x03"),
	)
	assert.Equal(t, []float64{1, 1, 3, 3}, drain(s))
	assert.NoError(t, s.Err())

	_, ok := s.Next()
	assert.False(t, ok)
}

func TestSourceGivesUpAfterSkipCeiling(t *testing.T) {
	var packets []*container.Packet
	packets = append(packets, pkt(1, 0, "\x05"))
	for i := 0; i < 40; i++ {
		packets = append(packets, pkt(1, uint64(2+2*i), "bad"))
	}
	packets = append(packets, pkt(1, 100, "\x07"))

	s, _, _ := newScripted(packets...)
	assert.Equal(t, []float64{5, 5}, drain(s))
	assert.ErrorIs(t, s.Err(), ErrUndecodable)
}

func TestSourceStreamFillsBuffer(t *testing.T) {
	s, _, _ := newScripted(pkt(1, 0, "\x01"), pkt(1, 2, "\x02"), pkt(1, 4, "\x03"))
	buf := make([][2]float64, 4)
	n, ok := s.Stream(buf)
	assert.Equal(t, 4, n)
	assert.True(t, ok)
	assert.Equal(t, [2]float64{2, 2}, buf[3])

	n, ok = s.Stream(buf)
	assert.Equal(t, 2, n)
	assert.True(t, ok)

	n, ok = s.Stream(buf)
	assert.Equal(t, 0, n)
	assert.False(t, ok)
}

func TestSourceSeekResetsAndTrims(t *testing.T) {
	s, r, d := newScripted(pkt(1, 0, "\x01"), pkt(1, 2, "\x02"), pkt(1, 4, "\x03"))
	_, _ = s.Next()

	// 3 ms at 1 kHz is frame 3: the packet at ts 2 keeps only its second frame
	require.NoError(t, s.Seek(3*time.Millisecond))
	assert.Equal(t, []uint64{3}, r.seekedTo)
	assert.Equal(t, 1, d.resets)
	assert.Equal(t, []float64{2, 3, 3}, drain(s))
}

func TestSourceSeekIntoLaterLace(t *testing.T) {
	// three laces of one block all carry timestamp 0
	s, _, _ := newScripted(pkt(1, 0, "\x01"), pkt(1, 0, "\x02"), pkt(1, 0, "\x03"), pkt(1, 6, "\x04"))

	// frame 3 is the second frame of the second lace
	require.NoError(t, s.Seek(3*time.Millisecond))
	assert.Equal(t, []float64{2, 3, 3, 4, 4}, drain(s))
}

func TestSourceSeekFailureKeepsPosition(t *testing.T) {
	s, r, d := newScripted(pkt(1, 0, "\x01"), pkt(1, 2, "\x02"))
	r.seekErr = container.ErrSeekUnsupported
	_, _ = s.Next()

	err := s.Seek(time.Second)
	assert.ErrorIs(t, err, container.ErrSeekUnsupported)
	assert.Equal(t, 0, d.resets)
	assert.Equal(t, []float64{1, 2, 2}, drain(s))
}

func TestSourceTimestampConversion(t *testing.T) {
	s, r, _ := newScripted()
	require.NoError(t, s.Seek(2500*time.Millisecond))
	require.NoError(t, s.Seek(-time.Second))
	assert.Equal(t, []uint64{2500, 0}, r.seekedTo)
}

func TestSourceClose(t *testing.T) {
	s, r, _ := newScripted()
	require.NoError(t, s.Close())
	assert.True(t, r.closed)
}

func TestOpenWAV(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fixture.WAV{Rate: 22050, Channels: 1, BitDepth: 16, Frames: 500}.WriteFile(fs, "mono.wav"))

	s, err := OpenFile(fs, "mono.wav", DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 22050, s.SampleRate())
	assert.Equal(t, 1, s.Channels())
	assert.Equal(t, "primary", s.Registry())

	var frames [][2]float64
	for {
		f, ok := s.Next()
		if !ok {
			break
		}
		frames = append(frames, f)
	}
	require.Len(t, frames, 500)
	assert.Equal(t, fixture.Ramp(7, 0), frames[7][0])
	assert.Equal(t, frames[7][0], frames[7][1])
	assert.NoError(t, s.Err())
}

func TestOpenFallsBackToExtendedRegistry(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fixture.WAV{Rate: 48000, Channels: 2, BitDepth: 32, Frames: 300}.WriteFile(fs, "wide.wav"))

	s, err := OpenFile(fs, "wide.wav", DefaultOptions())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "extended", s.Registry())

	f, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, fixture.Ramp(0, 0), f[0])
	assert.Equal(t, fixture.Ramp(0, 1), f[1])
}

func TestOpenWithoutFallback(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fixture.WAV{Rate: 48000, Channels: 2, BitDepth: 32, Frames: 10}.WriteFile(fs, "wide.wav"))

	opts := DefaultOptions()
	opts.Fallback = nil
	_, err := OpenFile(fs, "wide.wav", opts)
	assert.ErrorIs(t, err, codec.ErrNoDecoder)
	assert.Contains(t, err.Error(), "wide.wav")
}

func TestOpenErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "junk.wav", []byte("definitely not audio"), 0o644))

	_, err := OpenFile(fs, "junk.wav", DefaultOptions())
	assert.ErrorIs(t, err, container.ErrUnprobeable)

	_, err = OpenFile(fs, "missing.wav", DefaultOptions())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing.wav")

	mkv := fixture.PCMMatroska(48000, 2, 960, 960, nil)
	mkv.Codec = "A_VORBIS"
	require.NoError(t, mkv.WriteFile(fs, "vorbis.mka"))
	_, err = OpenFile(fs, "vorbis.mka", DefaultOptions())
	assert.ErrorIs(t, err, codec.ErrNoDecoder)
}

func TestMatroskaWithoutChannelCountDefaultsToStereo(t *testing.T) {
	fs := afero.NewMemMapFs()
	mkv := fixture.PCMMatroska(48000, 2, 960, 960, nil)
	mkv.Channels = 0
	require.NoError(t, mkv.WriteFile(fs, "nochannels.mka"))

	s, err := OpenFile(fs, "nochannels.mka", DefaultOptions())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 2, s.Channels())
	assert.Equal(t, 960, len(drain(s)))
}

func TestMatroskaSeekIsSampleAccurate(t *testing.T) {
	fs := afero.NewMemMapFs()
	mkv := fixture.PCMMatroska(48000, 2, 48000, 960, nil)
	mkv.ClusterBlocks = 10
	mkv.Cues = true
	require.NoError(t, mkv.WriteFile(fs, "cues.mka"))

	s, err := OpenFile(fs, "cues.mka", DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	// 250 ms is frame 12000; the nearest cue is the cluster at 200 ms
	require.NoError(t, s.Seek(250*time.Millisecond))
	f, ok := s.Next()
	require.True(t, ok)
	assert.InDelta(t, fixture.Ramp(12000, 0), f[0], 1e-9)
	f, _ = s.Next()
	assert.InDelta(t, fixture.Ramp(12001, 0), f[0], 1e-9)
}

func TestOpusMatroskaPlays(t *testing.T) {
	fs := afero.NewMemMapFs()
	mkv, err := fixture.OpusMatroska(2, 9600, nil)
	require.NoError(t, err)
	mkv.CodecDelay = 6500000 // 312 frames
	require.NoError(t, mkv.WriteFile(fs, "tone.webm"))

	s, err := OpenFile(fs, "tone.webm", DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "extended", s.Registry())
	assert.Equal(t, 48000, s.SampleRate())

	n := 0
	var peak float64
	for {
		f, ok := s.Next()
		if !ok {
			break
		}
		n++
		if f[0] > peak {
			peak = f[0]
		}
	}
	assert.Equal(t, 10*960-312, n)
	assert.Greater(t, peak, 0.2)
	assert.NoError(t, s.Err())
}
