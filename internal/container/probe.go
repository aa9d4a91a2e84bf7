/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package container

import (
	"bytes"
	"errors"
	"fmt"
	"impulse/pkg/spec"
	"io"

	"github.com/samber/lo"
)

type opener func(src MediaSource, opts Options) (FormatReader, error)

type format struct {
	name  string
	exts  []string
	match func(head []byte) bool
	open  opener
}

var formats = []format{
	{
		name: "wav",
		exts: []string{spec.ExtWAV, spec.ExtWAVE},
		match: func(h []byte) bool {
			return len(h) >= 12 && string(h[0:4]) == spec.MagicRIFF && string(h[8:12]) == spec.MagicWAVE
		},
		open: openWAV,
	},
	{
		name:  "matroska",
		exts:  []string{spec.ExtMKA, spec.ExtWEBM},
		match: func(h []byte) bool { return bytes.HasPrefix(h, []byte(spec.MagicEBML)) },
		open:  openMatroska,
	},
	{
		name:  "flac",
		exts:  []string{spec.ExtFLAC},
		match: func(h []byte) bool { return bytes.HasPrefix(h, []byte(spec.MagicFLAC)) },
		open:  openFLAC,
	},
	{
		name:  "ogg",
		exts:  []string{spec.ExtOGG, spec.ExtOGA},
		match: func(h []byte) bool { return bytes.HasPrefix(h, []byte(spec.MagicOgg)) },
		open:  openVorbis,
	},
	{
		name: "mp3",
		exts: []string{spec.ExtMP3},
		match: func(h []byte) bool {
			if bytes.HasPrefix(h, []byte(spec.MagicID3)) {
				return true
			}
			// MPEG frame sync
			return len(h) >= 2 && h[0] == 0xFF && h[1]&0xE0 == 0xE0
		},
		open: openMP3,
	},
}

// Probe detects the container of src. Formats matching the hint are tried
// first, then any format whose magic matches the head of the stream. On
// success the returned reader owns src.
func Probe(src MediaSource, hint Hint, opts Options) (FormatReader, error) {
	// 1. Sniff magic
	head := make([]byte, 16)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("probe read: %w", err)
	}
	head = head[:n]

	// 2. Order candidates: hinted formats, then sniffed ones
	var candidates []format
	for _, f := range formats {
		if hint.Extension != "" && lo.Contains(f.exts, hint.Extension) {
			candidates = append(candidates, f)
		}
	}
	for _, f := range formats {
		if f.match(head) && !lo.ContainsBy(candidates, func(c format) bool { return c.name == f.name }) {
			candidates = append(candidates, f)
		}
	}

	// 3. First reader that accepts the stream wins
	var errs []error
	for _, f := range candidates {
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("probe rewind: %w", err)
		}
		r, err := f.open(src, opts)
		if err == nil {
			return r, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
	}

	if len(errs) == 0 {
		return nil, ErrUnprobeable
	}
	return nil, fmt.Errorf("%w: %w", ErrUnprobeable, errors.Join(errs...))
}
