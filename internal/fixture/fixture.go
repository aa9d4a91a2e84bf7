/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

// Package fixture writes small synthetic media files for tests and for the
// `impulse gen` command.
package fixture

import (
	"bytes"
	"io"
	"math"

	"impulse/pkg/audioengine"

	"github.com/faiface/beep"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// Signal returns the sample for a frame and channel in [-1, 1).
type Signal func(frame, ch int) float64

// Ramp is exactly representable at 16 bits and above, so decoders can be
// checked for bit exact output.
func Ramp(frame, ch int) float64 {
	v := float64(frame%200-100) / 256
	if ch%2 == 1 {
		return -v
	}
	return v
}

func Sine(freq float64, rate int) Signal {
	return func(frame, ch int) float64 {
		phase := float64(ch) * math.Pi / 2
		return 0.5 * math.Sin(2*math.Pi*freq*float64(frame)/float64(rate)+phase)
	}
}

// ====================================================================
// WAV
// ====================================================================

type WAV struct {
	Rate     int
	Channels int
	BitDepth int
	Frames   int
	Signal   Signal
}

func (w WAV) Encode(ws io.WriteSeeker) error {
	sig := w.Signal
	if sig == nil {
		sig = Ramp
	}
	scale := float64(int64(1) << uint(w.BitDepth-1))

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: w.Channels, SampleRate: w.Rate},
		SourceBitDepth: w.BitDepth,
		Data:           make([]int, w.Frames*w.Channels),
	}
	for i := 0; i < w.Frames; i++ {
		for ch := 0; ch < w.Channels; ch++ {
			buf.Data[i*w.Channels+ch] = int(sig(i, ch) * scale)
		}
	}

	enc := wav.NewEncoder(ws, w.Rate, w.BitDepth, w.Channels, 1)
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

func (w WAV) WriteFile(fs afero.Fs, path string) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	if err := w.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ====================================================================
// MATROSKA
// ====================================================================

const (
	CodecPCM  = "A_PCM/INT/LIT"
	CodecOpus = "A_OPUS"

	msScale = 1000000
)

type Matroska struct {
	Codec      string
	Rate       int
	Channels   int
	BitDepth   int
	CodecDelay uint64 // nanoseconds

	// Blocks holds one codec frame per SimpleBlock; each spans BlockFrames.
	Blocks        [][]byte
	BlockFrames   int
	ClusterBlocks int
	TotalFrames   int

	Cues bool
	// SideTrack adds a non-audio track whose blocks readers must ignore.
	SideTrack bool
}

func (m Matroska) Bytes() []byte {
	perCluster := m.ClusterBlocks
	if perCluster <= 0 {
		perCluster = 25
	}
	blockMs := func(i int) uint64 {
		return uint64(i) * uint64(m.BlockFrames) * 1000 / uint64(m.Rate)
	}

	// 1. Info and tracks
	durationMs := float64(m.TotalFrames) * 1000 / float64(m.Rate)
	info := element(0x1549A966, uintEl(0x2AD7B1, msScale), floatEl(0x4489, durationMs))

	audioEl := element(0xE1, floatEl(0xB5, float64(m.Rate)), uintEl(0x9F, uint64(m.Channels)))
	if m.BitDepth > 0 {
		audioEl = element(0xE1, floatEl(0xB5, float64(m.Rate)), uintEl(0x9F, uint64(m.Channels)), uintEl(0x6264, uint64(m.BitDepth)))
	}
	entry := [][]byte{uintEl(0xD7, 1), uintEl(0x73C5, 1), uintEl(0x83, 2), strEl(0x86, m.Codec)}
	if m.Codec == CodecOpus {
		entry = append(entry, element(0x63A2, opusHead(m.Channels)))
	}
	if m.CodecDelay > 0 {
		entry = append(entry, uintEl(0x56AA, m.CodecDelay))
	}
	entry = append(entry, audioEl)
	trackEls := [][]byte{element(0xAE, entry...)}
	if m.SideTrack {
		trackEls = append(trackEls, element(0xAE, uintEl(0xD7, 2), uintEl(0x73C5, 2), uintEl(0x83, 0x11), strEl(0x86, "S_TEXT/UTF8")))
	}
	tracks := element(0x1654AE6B, trackEls...)

	// 2. Clusters
	var clusters [][]byte
	var clusterMs []uint64
	for start := 0; start < len(m.Blocks); start += perCluster {
		end := min(start+perCluster, len(m.Blocks))
		tc := blockMs(start)
		children := [][]byte{uintEl(0xE7, tc)}
		for i := start; i < end; i++ {
			rel := int16(blockMs(i) - tc)
			children = append(children, element(0xA3, simpleBlock(1, rel, m.Blocks[i])))
		}
		if m.SideTrack {
			children = append(children, element(0xA3, simpleBlock(2, 0, []byte("caption"))))
		}
		clusters = append(clusters, element(0x1F43B675, children...))
		clusterMs = append(clusterMs, tc)
	}

	// 3. Cues, sized first so cluster offsets can be computed
	var cues []byte
	if m.Cues {
		cues = buildCues(clusterMs, make([]uint64, len(clusters)))
		pos := uint64(len(info) + len(tracks) + len(cues))
		offsets := make([]uint64, len(clusters))
		for i, c := range clusters {
			offsets[i] = pos
			pos += uint64(len(c))
		}
		cues = buildCues(clusterMs, offsets)
	}

	body := [][]byte{info, tracks}
	if cues != nil {
		body = append(body, cues)
	}
	body = append(body, clusters...)

	header := element(0x1A45DFA3, uintEl(0x4286, 1), strEl(0x4282, "matroska"), uintEl(0x4287, 4))
	return append(header, element(0x18538067, body...)...)
}

func (m Matroska) WriteFile(fs afero.Fs, path string) error {
	return afero.WriteFile(fs, path, m.Bytes(), 0o644)
}

// PCMMatroska lays out sig as 16-bit little endian PCM blocks.
func PCMMatroska(rate, channels, frames, blockFrames int, sig Signal) Matroska {
	if sig == nil {
		sig = Ramp
	}
	var blocks [][]byte
	for start := 0; start < frames; start += blockFrames {
		end := min(start+blockFrames, frames)
		var b bytes.Buffer
		for i := start; i < end; i++ {
			for ch := 0; ch < channels; ch++ {
				v := int16(sig(i, ch) * 32768)
				b.WriteByte(byte(v))
				b.WriteByte(byte(uint16(v) >> 8))
			}
		}
		blocks = append(blocks, b.Bytes())
	}
	return Matroska{
		Codec:       CodecPCM,
		Rate:        rate,
		Channels:    channels,
		BitDepth:    16,
		Blocks:      blocks,
		BlockFrames: blockFrames,
		TotalFrames: frames,
	}
}

// Streamer plays sig for frames frames.
func (sig Signal) Streamer(frames int) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= frames {
			return 0, false
		}
		n := min(len(samples), frames-pos)
		for i := 0; i < n; i++ {
			samples[i] = [2]float64{sig(pos+i, 0), sig(pos+i, 1)}
		}
		pos += n
		return n, true
	})
}

// OpusMatroska encodes sig into 20 ms Opus frames at 48 kHz.
func OpusMatroska(channels, frames int, sig Signal) (Matroska, error) {
	if sig == nil {
		sig = Sine(440, audioengine.OpusRate)
	}
	return EncodeOpus(sig.Streamer(frames), channels)
}

// EncodeOpus drains a 48 kHz streamer into an Opus Matroska layout.
func EncodeOpus(src beep.Streamer, channels int) (Matroska, error) {
	results := make(chan audioengine.EncoderResult, 16)
	done := make(chan struct{})

	var blocks [][]byte
	go func() {
		defer close(done)
		for res := range results {
			if res.Error == nil {
				blocks = append(blocks, res.Frame)
			}
		}
	}()

	frames, err := audioengine.StreamEncodeOpus(src, channels, results)
	close(results)
	<-done
	if err != nil {
		return Matroska{}, err
	}

	return Matroska{
		Codec:       CodecOpus,
		Rate:        audioengine.OpusRate,
		Channels:    channels,
		Blocks:      blocks,
		BlockFrames: audioengine.OpusFrameSize,
		TotalFrames: frames,
	}, nil
}

func buildCues(times, offsets []uint64) []byte {
	points := make([][]byte, len(times))
	for i := range times {
		points[i] = element(0xBB, uintEl(0xB3, times[i]), element(0xB7, uintEl(0xF7, 1), uintEl(0xF1, offsets[i])))
	}
	return element(0x1C53BB6B, points...)
}

func opusHead(channels int) []byte {
	h := []byte("OpusHead")
	h = append(h, 1, byte(channels), 0x38, 0x01) // pre-skip 312
	h = append(h, 0x80, 0xBB, 0x00, 0x00)        // 48000
	return append(h, 0, 0, 0, 0)
}

func simpleBlock(track byte, rel int16, data []byte) []byte {
	b := []byte{0x80 | track, byte(uint16(rel) >> 8), byte(rel), 0x80}
	return append(b, data...)
}

func element(id uint32, payload ...[]byte) []byte {
	var out []byte
	for shift := 24; shift >= 0; shift -= 8 {
		if b := byte(id >> uint(shift)); b != 0 || len(out) > 0 {
			out = append(out, b)
		}
	}
	size := 0
	for _, p := range payload {
		size += len(p)
	}
	// 8 byte size vint
	out = append(out, 0x01)
	for shift := 48; shift >= 0; shift -= 8 {
		out = append(out, byte(uint64(size)>>uint(shift)))
	}
	for _, p := range payload {
		out = append(out, p...)
	}
	return out
}

func uintEl(id uint32, v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> uint(8*i))
	}
	return element(id, b)
}

func floatEl(id uint32, v float64) []byte {
	return uintEl(id, math.Float64bits(v))
}

func strEl(id uint32, s string) []byte {
	return element(id, []byte(s))
}
