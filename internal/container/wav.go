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

	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// wavReader hands out raw PCM chunks of spec.PacketFrames frames.
type wavReader struct {
	src       MediaSource
	track     Track
	pcmStart  int64
	frameSize int64
	total     uint64
	pos       uint64
}

func openWAV(src MediaSource, _ Options) (FormatReader, error) {
	dec := wav.NewDecoder(src)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid RIFF/WAVE header")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("locate data chunk: %w", err)
	}

	// FwdToPCM leaves the reader at the first sample
	start, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	channels := int(dec.NumChans)
	depth := int(dec.BitDepth)
	if channels <= 0 || depth <= 0 || depth%8 != 0 {
		return nil, fmt.Errorf("unsupported layout: %d channels, %d-bit", channels, depth)
	}

	sf := SampleInt
	switch dec.WavAudioFormat {
	case wavFormatPCM, wavFormatExtensible:
	case wavFormatFloat:
		sf = SampleFloat
	default:
		return nil, fmt.Errorf("unsupported wave format tag 0x%04x", dec.WavAudioFormat)
	}

	frameSize := int64(channels * depth / 8)
	total := uint64(dec.PCMLen() / frameSize)

	return &wavReader{
		src: src,
		track: Track{
			ID: 0,
			Params: CodecParams{
				Codec:      CodecPCM,
				SampleRate: int(dec.SampleRate),
				Channels:   channels,
				BitDepth:   depth,
				Format:     sf,
				NumFrames:  total,
			},
		},
		pcmStart:  start,
		frameSize: frameSize,
		total:     total,
	}, nil
}

func (r *wavReader) Format() string { return "wav" }

func (r *wavReader) Tracks() []Track { return []Track{r.track} }

func (r *wavReader) DefaultTrack() (Track, bool) { return r.track, true }

func (r *wavReader) NextPacket() (*Packet, error) {
	remaining := r.total - r.pos
	if remaining == 0 {
		return nil, io.EOF
	}
	frames := min(uint64(spec.PacketFrames), remaining)

	buf := make([]byte, int64(frames)*r.frameSize)
	n, err := io.ReadFull(r.src, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			r.pos = r.total
		}
		return nil, err
	}

	// Truncated file: keep whole frames only
	got := uint64(int64(n) / r.frameSize)
	if got == 0 {
		r.pos = r.total
		return nil, io.EOF
	}

	pkt := &Packet{TrackID: r.track.ID, Timestamp: r.pos, Data: buf[:int64(got)*r.frameSize]}
	r.pos += got
	if got < frames {
		r.total = r.pos
	}
	return pkt, nil
}

func (r *wavReader) Seek(trackID uint32, ts uint64) (uint64, error) {
	if trackID != r.track.ID {
		return 0, fmt.Errorf("%w: track %d", ErrNoTrack, trackID)
	}
	if ts > r.total {
		return 0, fmt.Errorf("%w: frame %d of %d", ErrSeekOutOfRange, ts, r.total)
	}
	if _, err := r.src.Seek(r.pcmStart+int64(ts)*r.frameSize, io.SeekStart); err != nil {
		return 0, err
	}
	r.pos = ts
	return ts, nil
}

func (r *wavReader) Close() error {
	return r.src.Close()
}
