/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package container

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrUnprobeable     = errors.New("container: no format recognised the stream")
	ErrNoTrack         = errors.New("container: no playable track")
	ErrSeekUnsupported = errors.New("container: seeking not supported")
	ErrSeekOutOfRange  = errors.New("container: seek target past end of stream")
)

type CodecType string

const (
	CodecUnknown CodecType = ""
	CodecPCM     CodecType = "pcm"
	CodecMP3     CodecType = "mp3"
	CodecFLAC    CodecType = "flac"
	CodecVorbis  CodecType = "vorbis"
	CodecOpus    CodecType = "opus"
)

type SampleFormat int

const (
	SampleInt SampleFormat = iota
	SampleFloat
)

func (f SampleFormat) String() string {
	if f == SampleFloat {
		return "float"
	}
	return "int"
}

// CodecParams describes how the packets of a track are encoded.
type CodecParams struct {
	Codec      CodecType
	SampleRate int
	Channels   int
	BitDepth   int
	Format     SampleFormat

	// NumFrames is the total frame count when the container knows it, 0 otherwise.
	NumFrames uint64
	// Delay is the number of leading frames a gapless decoder drops.
	Delay uint64
	// Extra carries codec private data (Opus head, etc).
	Extra []byte
	// Predecoded marks tracks whose packets already carry PCM frames.
	Predecoded bool
}

// Duration returns the stream length, or 0 when unknown.
func (p CodecParams) Duration() time.Duration {
	if p.NumFrames == 0 || p.SampleRate <= 0 {
		return 0
	}
	secs := p.NumFrames / uint64(p.SampleRate)
	rem := p.NumFrames % uint64(p.SampleRate)
	return time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/time.Duration(p.SampleRate)
}

type Track struct {
	ID     uint32
	Params CodecParams
}

// Packet is one unit read from a container. Timestamp is in frames of the
// track's sample rate.
type Packet struct {
	TrackID   uint32
	Timestamp uint64
	Data      []byte
	Frames    [][2]float64
}

// FormatReader yields packets of a probed container. NextPacket returns
// io.EOF once the stream is exhausted.
type FormatReader interface {
	Format() string
	Tracks() []Track
	DefaultTrack() (Track, bool)
	NextPacket() (*Packet, error)
	// Seek positions the reader at or before ts and returns the timestamp
	// actually reached.
	Seek(trackID uint32, ts uint64) (uint64, error)
	Close() error
}

// MediaSource is what a probe reads from. afero.File and *os.File satisfy it.
type MediaSource interface {
	io.ReadSeeker
	io.Closer
}

type Hint struct {
	Extension string
}

func HintFromPath(path string) Hint {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	return Hint{Extension: strings.ToLower(ext)}
}

type Options struct {
	// Gapless asks readers to report encoder delay so it can be trimmed.
	Gapless bool
}

// FramesAt converts a wall-clock offset into a frame index at rate.
func FramesAt(d time.Duration, rate int) uint64 {
	if d <= 0 || rate <= 0 {
		return 0
	}
	secs := uint64(d / time.Second)
	nanos := uint64(d % time.Second)
	return secs*uint64(rate) + nanos*uint64(rate)/uint64(time.Second)
}

// DurationOf is the inverse of FramesAt.
func DurationOf(frames uint64, rate int) time.Duration {
	return CodecParams{NumFrames: frames, SampleRate: rate}.Duration()
}

// keepOpen hides Close from decoders that take ownership of their reader,
// so a failed probe attempt does not close the file for the next one.
type keepOpen struct {
	MediaSource
}

func (keepOpen) Close() error { return nil }
