/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

// Package audioengine turns decoded audio back into Opus frames.
package audioengine

import (
	"bytes"
	"fmt"

	"github.com/faiface/beep"
	"github.com/hraban/opus"
)

const (
	OpusRate      = 48000
	OpusFrameSize = 960 // 20ms @ 48kHz
	maxPacket     = 1500
)

type EncoderResult struct {
	Frame []byte
	Error error
}

// StreamEncodeOpus drains src, which must already run at 48 kHz, and sends
// one 20 ms Opus frame per result. The last frame is padded with silence.
// It returns the number of source frames encoded.
func StreamEncodeOpus(src beep.Streamer, channels int, results chan<- EncoderResult) (int, error) {
	if channels != 1 && channels != 2 {
		return 0, fmt.Errorf("opus encoder: %d channels not supported", channels)
	}
	enc, err := opus.NewEncoder(OpusRate, channels, opus.AppAudio)
	if err != nil {
		return 0, fmt.Errorf("opus encoder: %w", err)
	}

	block := make([][2]float64, OpusFrameSize)
	pcm := make([]int16, OpusFrameSize*channels)
	out := make([]byte, maxPacket)

	total := 0
	for {
		n := fill(src, block)
		if n == 0 {
			break
		}

		for i := 0; i < OpusFrameSize; i++ {
			for ch := 0; ch < channels; ch++ {
				v := 0.0
				if i < n {
					v = block[i][ch]
				}
				pcm[i*channels+ch] = toInt16(v)
			}
		}

		size, err := enc.Encode(pcm, out)
		if err != nil {
			results <- EncoderResult{Error: err}
			return total, err
		}
		results <- EncoderResult{Frame: bytes.Clone(out[:size])}
		total += n

		if n < OpusFrameSize {
			break
		}
	}

	if err := src.Err(); err != nil {
		return total, err
	}
	return total, nil
}

// fill reads until block is full or src ends.
func fill(src beep.Streamer, block [][2]float64) int {
	n := 0
	for n < len(block) {
		got, ok := src.Stream(block[n:])
		n += got
		if !ok || got == 0 {
			break
		}
	}
	return n
}

func toInt16(v float64) int16 {
	v *= 32767
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}
