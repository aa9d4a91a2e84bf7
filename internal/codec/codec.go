/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package codec

import (
	"errors"
	"fmt"

	"impulse/internal/container"
)

var (
	ErrUnsupportedCodec = errors.New("codec: unsupported codec parameters")
	ErrNoDecoder        = errors.New("codec: no decoder available")
)

// Decoder turns packets of one track into interleaved stereo frames.
type Decoder interface {
	Decode(pkt *container.Packet) ([][2]float64, error)
	// Reset drops internal state after a seek.
	Reset()
}

type Factory func(params container.CodecParams) (Decoder, error)

// Registry maps codecs to decoder factories. Factories registered later for
// the same codec are tried first.
type Registry struct {
	name      string
	factories map[container.CodecType][]Factory
}

func NewRegistry(name string) *Registry {
	return &Registry{name: name, factories: make(map[container.CodecType][]Factory)}
}

func (r *Registry) Name() string { return r.name }

func (r *Registry) Register(codec container.CodecType, f Factory) {
	r.factories[codec] = append([]Factory{f}, r.factories[codec]...)
}

func (r *Registry) Supports(codec container.CodecType) bool {
	return len(r.factories[codec]) > 0
}

func (r *Registry) Make(params container.CodecParams) (Decoder, error) {
	fs := r.factories[params.Codec]
	if len(fs) == 0 {
		return nil, fmt.Errorf("%w: %s registry has no %q decoder", ErrUnsupportedCodec, r.name, params.Codec)
	}
	var last error
	for _, f := range fs {
		d, err := f(params)
		if err == nil {
			return d, nil
		}
		last = err
	}
	return nil, fmt.Errorf("%s registry: %w", r.name, last)
}

func (r *Registry) clone(name string) *Registry {
	c := NewRegistry(name)
	for k, v := range r.factories {
		c.factories[k] = append([]Factory(nil), v...)
	}
	return c
}

// Primary covers the common cases: integer PCM up to 24 bits and the
// formats whose readers decode on their own.
func Primary() *Registry {
	r := NewRegistry("primary")
	r.Register(container.CodecPCM, newPCMDecoder(8, 16, 24))
	for _, c := range []container.CodecType{container.CodecMP3, container.CodecFLAC, container.CodecVorbis} {
		r.Register(c, newPassthrough)
	}
	return r
}

// Extended adds wide and float PCM plus Opus on top of Primary.
func Extended() *Registry {
	r := Primary().clone("extended")
	r.Register(container.CodecPCM, newPCMDecoder(8, 16, 24, 32, 64))
	r.Register(container.CodecOpus, newOpusDecoder)
	return r
}

// Select builds a decoder from primary, falling back to fallback. It
// reports which registry served the track.
func Select(params container.CodecParams, primary, fallback *Registry) (Decoder, string, error) {
	var errs []error
	for _, reg := range []*Registry{primary, fallback} {
		if reg == nil {
			continue
		}
		d, err := reg.Make(params)
		if err == nil {
			return d, reg.Name(), nil
		}
		errs = append(errs, err)
	}
	return nil, "", fmt.Errorf("%w for %q: %w", ErrNoDecoder, params.Codec, errors.Join(errs...))
}

// passthrough serves readers whose packets already carry frames.
type passthrough struct{}

func newPassthrough(params container.CodecParams) (Decoder, error) {
	if !params.Predecoded {
		return nil, fmt.Errorf("%w: %s packets are not decoded by the container", ErrUnsupportedCodec, params.Codec)
	}
	return passthrough{}, nil
}

func (passthrough) Decode(pkt *container.Packet) ([][2]float64, error) {
	if pkt.Frames == nil && len(pkt.Data) > 0 {
		return nil, errors.New("codec: packet has no decoded frames")
	}
	return pkt.Frames, nil
}

func (passthrough) Reset() {}

// toStereo folds n interleaved channels into a frame: mono is duplicated,
// wider layouts keep their first two channels.
func toStereo(samples []float64, channels int) [2]float64 {
	if channels == 1 {
		return [2]float64{samples[0], samples[0]}
	}
	return [2]float64{samples[0], samples[1]}
}
