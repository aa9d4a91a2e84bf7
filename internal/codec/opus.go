/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package codec

import (
	"fmt"

	"impulse/internal/container"
	"impulse/pkg/spec"

	"github.com/hraban/opus"
)

type opusDecoder struct {
	dec      *opus.Decoder
	rate     int
	channels int
	pcm      []int16

	// leading frames still to drop (encoder pre-skip)
	delay uint64
	skip  uint64
}

func newOpusDecoder(p container.CodecParams) (Decoder, error) {
	channels := p.Channels
	if channels <= 0 {
		channels = spec.Channels
	}
	if channels > 2 {
		return nil, fmt.Errorf("%w: opus with %d channels", ErrUnsupportedCodec, channels)
	}
	rate := p.SampleRate
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		rate = spec.SampleRate
	}

	dec, err := opus.NewDecoder(rate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	return &opusDecoder{
		dec:      dec,
		rate:     rate,
		channels: channels,
		pcm:      make([]int16, spec.OpusMaxFrame*channels),
		delay:    p.Delay,
		skip:     p.Delay,
	}, nil
}

func (d *opusDecoder) Decode(pkt *container.Packet) ([][2]float64, error) {
	n, err := d.dec.Decode(pkt.Data, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus: %w", err)
	}

	start := 0
	if d.skip > 0 {
		drop := min(d.skip, uint64(n))
		d.skip -= drop
		start = int(drop)
	}

	out := make([][2]float64, 0, n-start)
	for i := start; i < n; i++ {
		l := float64(d.pcm[i*d.channels]) / 32768
		r := l
		if d.channels == 2 {
			r = float64(d.pcm[i*d.channels+1]) / 32768
		}
		out = append(out, [2]float64{l, r})
	}
	return out, nil
}

// Reset recreates the decoder; libopus state is not reusable across a
// discontinuity.
func (d *opusDecoder) Reset() {
	if dec, err := opus.NewDecoder(d.rate, d.channels); err == nil {
		d.dec = dec
	}
	d.skip = 0
}
