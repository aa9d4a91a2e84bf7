/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"impulse/internal/container"

	"github.com/go-audio/audio"
	"github.com/samber/lo"
)

type pcmDecoder struct {
	channels int
	depth    int
	float    bool
	buf      *audio.IntBuffer
	scratch  []float64
}

// newPCMDecoder accepts little endian PCM at the listed bit depths. 32 and
// 64 bit float samples are accepted only when those depths are listed.
func newPCMDecoder(depths ...int) Factory {
	return func(p container.CodecParams) (Decoder, error) {
		if p.Channels <= 0 {
			return nil, fmt.Errorf("%w: pcm with %d channels", ErrUnsupportedCodec, p.Channels)
		}
		float := p.Format == container.SampleFloat
		ok := lo.Contains(depths, p.BitDepth)
		if float {
			ok = ok && (p.BitDepth == 32 || p.BitDepth == 64)
		} else {
			ok = ok && p.BitDepth <= 32
		}
		if !ok {
			return nil, fmt.Errorf("%w: %d-bit %s pcm", ErrUnsupportedCodec, p.BitDepth, p.Format)
		}
		return &pcmDecoder{
			channels: p.Channels,
			depth:    p.BitDepth,
			float:    float,
			buf: &audio.IntBuffer{
				Format:         &audio.Format{NumChannels: p.Channels, SampleRate: p.SampleRate},
				SourceBitDepth: p.BitDepth,
			},
			scratch: make([]float64, p.Channels),
		}, nil
	}
}

func (d *pcmDecoder) Decode(pkt *container.Packet) ([][2]float64, error) {
	width := d.depth / 8
	frameSize := width * d.channels
	if len(pkt.Data)%frameSize != 0 {
		return nil, fmt.Errorf("pcm: packet of %d bytes is not a whole number of %d byte frames", len(pkt.Data), frameSize)
	}
	n := len(pkt.Data) / frameSize
	out := make([][2]float64, n)

	if d.float {
		for i := 0; i < n; i++ {
			for ch := 0; ch < d.channels; ch++ {
				off := i*frameSize + ch*width
				if width == 4 {
					d.scratch[ch] = float64(math.Float32frombits(binary.LittleEndian.Uint32(pkt.Data[off:])))
				} else {
					d.scratch[ch] = math.Float64frombits(binary.LittleEndian.Uint64(pkt.Data[off:]))
				}
			}
			out[i] = toStereo(d.scratch, d.channels)
		}
		return out, nil
	}

	// Integer samples are normalised by go-audio against SourceBitDepth
	samples := n * d.channels
	if cap(d.buf.Data) < samples {
		d.buf.Data = make([]int, samples)
	}
	d.buf.Data = d.buf.Data[:samples]
	for i := 0; i < samples; i++ {
		d.buf.Data[i] = readInt(pkt.Data[i*width:], width)
	}

	norm := d.buf.AsFloat32Buffer().Data
	for i := 0; i < n; i++ {
		for ch := 0; ch < d.channels; ch++ {
			d.scratch[ch] = float64(norm[i*d.channels+ch])
		}
		out[i] = toStereo(d.scratch, d.channels)
	}
	return out, nil
}

func (d *pcmDecoder) Reset() {}

func readInt(b []byte, width int) int {
	switch width {
	case 1:
		// 8-bit WAV is unsigned
		return int(b[0]) - 128
	case 2:
		return int(int16(binary.LittleEndian.Uint16(b)))
	case 3:
		return int(audio.Int24LETo32(b))
	default:
		return int(int32(binary.LittleEndian.Uint32(b)))
	}
}
