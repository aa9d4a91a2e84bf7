/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package engine

import (
	"errors"
	"fmt"
	"io"
	"time"

	"impulse/internal/codec"
	"impulse/internal/container"
	"impulse/internal/log"

	"github.com/sirupsen/logrus"
)

var ErrUndecodable = errors.New("engine: too many consecutive undecodable packets")

// Source pulls packets of one track on demand and yields stereo frames.
// It is not safe for concurrent use; the output sink serialises Stream and
// Seek under the device lock.
type Source struct {
	reader   container.FormatReader
	decoder  codec.Decoder
	track    container.Track
	registry string
	maxSkips int

	block  [][2]float64
	cursor int

	// frames before this timestamp are dropped after a seek
	target    uint64
	hasTarget bool

	// laces of one block share a timestamp; run tracks where the next one starts
	lastTS uint64
	run    uint64
	hasRun bool

	skips int
	done  bool
	err   error
}

func NewSource(reader container.FormatReader, track container.Track, dec codec.Decoder, maxSkips int) *Source {
	if maxSkips <= 0 {
		maxSkips = 1
	}
	return &Source{
		reader:   reader,
		decoder:  dec,
		track:    track,
		maxSkips: maxSkips,
	}
}

func (s *Source) SampleRate() int { return s.track.Params.SampleRate }

func (s *Source) Channels() int { return s.track.Params.Channels }

func (s *Source) Track() container.Track { return s.track }

// Registry names the decoder registry that served this track.
func (s *Source) Registry() string { return s.registry }

// Next returns the next frame, or false once the stream has ended.
func (s *Source) Next() ([2]float64, bool) {
	for s.cursor >= len(s.block) {
		if s.done {
			return [2]float64{}, false
		}
		s.fill()
	}
	f := s.block[s.cursor]
	s.cursor++
	return f, true
}

// Stream implements beep.Streamer.
func (s *Source) Stream(samples [][2]float64) (int, bool) {
	n := 0
	for n < len(samples) {
		if s.cursor >= len(s.block) {
			if s.done {
				break
			}
			s.fill()
			continue
		}
		c := copy(samples[n:], s.block[s.cursor:])
		s.cursor += c
		n += c
	}
	return n, n > 0
}

// Err reports why the stream ended early, nil on a normal end of stream.
func (s *Source) Err() error { return s.err }

func (s *Source) fill() {
	pkt, err := s.reader.NextPacket()
	if errors.Is(err, io.EOF) {
		s.done = true
		return
	}
	if err != nil {
		s.skip(err)
		return
	}
	if pkt.TrackID != s.track.ID {
		return
	}

	frames, err := s.decoder.Decode(pkt)
	if err != nil {
		s.skip(err)
		return
	}
	s.skips = 0

	ts := pkt.Timestamp
	if s.hasRun && ts == s.lastTS {
		ts = s.run
	}
	s.lastTS = pkt.Timestamp
	s.run = ts + uint64(len(frames))
	s.hasRun = true

	if s.hasTarget {
		if ts < s.target {
			drop := s.target - ts
			if drop >= uint64(len(frames)) {
				frames = nil
			} else {
				frames = frames[drop:]
			}
		}
		if len(frames) > 0 {
			s.hasTarget = false
		}
	}

	s.block = frames
	s.cursor = 0
}

func (s *Source) skip(err error) {
	s.skips++
	log.WithFields(logrus.Fields{"track": s.track.ID, "skips": s.skips}).Debugf("skipping packet: %v", err)
	if s.skips >= s.maxSkips {
		s.err = fmt.Errorf("%w: %d in a row, last: %w", ErrUndecodable, s.skips, err)
		s.done = true
		log.Warnf("abandoning stream after %d undecodable packets: %v", s.skips, err)
	}
}

// Seek repositions the stream at d from the start. On failure the stream
// keeps playing from where it was.
func (s *Source) Seek(d time.Duration) error {
	if d < 0 {
		d = 0
	}
	ts := container.FramesAt(d, s.SampleRate())
	if _, err := s.reader.Seek(s.track.ID, ts); err != nil {
		return err
	}

	s.decoder.Reset()
	s.block = nil
	s.cursor = 0
	s.target = ts
	s.hasTarget = true
	s.hasRun = false
	s.skips = 0
	s.done = false
	s.err = nil
	return nil
}

func (s *Source) Close() error {
	return s.reader.Close()
}
