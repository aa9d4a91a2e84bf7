/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package container

import (
	"errors"
	"fmt"
	"impulse/pkg/spec"
	"io"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
)

// streamReader adapts a beep decoder, which parses container and codec in
// one pass, to FormatReader. Its packets carry decoded frames.
type streamReader struct {
	name   string
	src    MediaSource
	stream beep.StreamSeekCloser
	track  Track
	buf    [][2]float64
}

type beepDecodeFunc func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

func openStream(name string, codec CodecType, decode beepDecodeFunc) opener {
	return func(src MediaSource, _ Options) (FormatReader, error) {
		s, format, err := decode(keepOpen{src})
		if err != nil {
			return nil, err
		}
		if format.SampleRate <= 0 {
			s.Close()
			return nil, errors.New("decoder reported no sample rate")
		}
		frames := 0
		if n := s.Len(); n > 0 {
			frames = n
		}
		return &streamReader{
			name:   name,
			src:    src,
			stream: s,
			track: Track{
				ID: 0,
				Params: CodecParams{
					Codec:      codec,
					SampleRate: int(format.SampleRate),
					Channels:   format.NumChannels,
					BitDepth:   format.Precision * 8,
					NumFrames:  uint64(frames),
					Predecoded: true,
				},
			},
			buf: make([][2]float64, spec.PacketFrames),
		}, nil
	}
}

var (
	openMP3  = openStream("mp3", CodecMP3, mp3.Decode)
	openFLAC = openStream("flac", CodecFLAC, func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
		return flac.Decode(rc)
	})
	openVorbis = openStream("ogg", CodecVorbis, vorbis.Decode)
)

func (r *streamReader) Format() string { return r.name }

func (r *streamReader) Tracks() []Track { return []Track{r.track} }

func (r *streamReader) DefaultTrack() (Track, bool) { return r.track, true }

func (r *streamReader) NextPacket() (*Packet, error) {
	pos := r.stream.Position()
	n, ok := r.stream.Stream(r.buf)
	if n == 0 || !ok {
		if err := r.stream.Err(); err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, io.EOF
		}
	}
	frames := make([][2]float64, n)
	copy(frames, r.buf[:n])
	return &Packet{TrackID: r.track.ID, Timestamp: uint64(pos), Frames: frames}, nil
}

func (r *streamReader) Seek(trackID uint32, ts uint64) (uint64, error) {
	if trackID != r.track.ID {
		return 0, fmt.Errorf("%w: track %d", ErrNoTrack, trackID)
	}
	if n := r.stream.Len(); n > 0 && ts > uint64(n) {
		return 0, fmt.Errorf("%w: frame %d of %d", ErrSeekOutOfRange, ts, n)
	}
	if err := r.stream.Seek(int(ts)); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSeekUnsupported, err)
	}
	return uint64(r.stream.Position()), nil
}

func (r *streamReader) Close() error {
	err := r.stream.Close()
	if cerr := r.src.Close(); err == nil {
		err = cerr
	}
	return err
}
