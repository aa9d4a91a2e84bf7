/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package engine

import (
	"fmt"

	"impulse/internal/codec"
	"impulse/internal/container"
	"impulse/internal/log"
	"impulse/pkg/spec"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type Options struct {
	Primary  *codec.Registry
	Fallback *codec.Registry
	MaxSkips int
	Gapless  bool
}

func DefaultOptions() Options {
	return Options{
		Primary:  codec.Primary(),
		Fallback: codec.Extended(),
		MaxSkips: spec.MaxDecodeSkips,
		Gapless:  true,
	}
}

// Open builds a Source from an opened media file. path is only used as an
// extension hint and for error context. The Source owns f; on failure f is
// closed.
func Open(f container.MediaSource, path string, opts Options) (*Source, error) {
	// 1. Probe
	reader, err := container.Probe(f, container.HintFromPath(path), container.Options{Gapless: opts.Gapless})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}

	// 2. Default track
	track, ok := reader.DefaultTrack()
	if !ok {
		reader.Close()
		return nil, fmt.Errorf("%s: %w", path, container.ErrNoTrack)
	}
	if track.Params.SampleRate <= 0 {
		track.Params.SampleRate = spec.SampleRate
	}
	if track.Params.Channels <= 0 {
		track.Params.Channels = spec.Channels
	}

	// 3. Decoder, primary registry first
	dec, registry, err := codec.Select(track.Params, opts.Primary, opts.Fallback)
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	src := NewSource(reader, track, dec, opts.MaxSkips)
	src.registry = registry

	log.WithFields(logrus.Fields{
		"path":     path,
		"format":   reader.Format(),
		"codec":    track.Params.Codec,
		"rate":     track.Params.SampleRate,
		"channels": track.Params.Channels,
		"registry": registry,
	}).Info("source opened")
	return src, nil
}

// OpenFile opens path on fs and hands it to Open.
func OpenFile(fs afero.Fs, path string, opts Options) (*Source, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return Open(f, path, opts)
}
