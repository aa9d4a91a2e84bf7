/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"impulse/internal/container"
	"impulse/internal/engine"
	"impulse/internal/filesystem"
	"impulse/internal/fixture"
	"impulse/pkg/audioengine"
	"impulse/pkg/spec"

	"github.com/faiface/beep"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(genCmd)
	genCmd.Flags().Duration("length", 5*time.Second, "Length of the generated audio")
	genCmd.Flags().Int("rate", spec.SampleRate, "Sample rate (webm is always 48000)")
	genCmd.Flags().Int("channels", spec.Channels, "Channel count")
	genCmd.Flags().Int("depth", 16, "WAV bit depth: 8, 16, 24 or 32")
	genCmd.Flags().Float64("tone", 440, "Sine frequency in Hz; 0 writes a sawtooth ramp")
	genCmd.Flags().Bool("cues", true, "Write a Matroska cue index so the file is seekable")
	genCmd.Flags().Duration("delay", 0, "Opus encoder delay recorded in the webm header")
	genCmd.Flags().String("from", "", "Transcode this playable file to webm instead of synthesising")
}

var genCmd = &cobra.Command{
	Use:   "gen <out.wav|out.mka|out.webm>",
	Short: "Write a synthetic test file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out := args[0]
		flags := cmd.Flags()
		length := lo.Must(flags.GetDuration("length"))
		rate := lo.Must(flags.GetInt("rate"))
		channels := lo.Must(flags.GetInt("channels"))
		tone := lo.Must(flags.GetFloat64("tone"))

		signal := func(rate int) fixture.Signal {
			if tone <= 0 {
				return fixture.Ramp
			}
			return fixture.Sine(tone, rate)
		}

		fs := filesystem.API()
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
		switch ext {
		case spec.ExtWAV, spec.ExtWAVE:
			w := fixture.WAV{
				Rate:     rate,
				Channels: channels,
				BitDepth: lo.Must(flags.GetInt("depth")),
				Frames:   int(container.FramesAt(length, rate)),
				Signal:   signal(rate),
			}
			handleErr(w.WriteFile(fs, out))

		case spec.ExtMKA:
			m := fixture.PCMMatroska(rate, channels, int(container.FramesAt(length, rate)), rate/50, signal(rate))
			m.Cues = lo.Must(flags.GetBool("cues"))
			handleErr(m.WriteFile(fs, out))

		case spec.ExtWEBM:
			var m fixture.Matroska
			var err error
			if from := lo.Must(flags.GetString("from")); from != "" {
				m, err = transcode(fs, from, channels)
			} else {
				m, err = fixture.OpusMatroska(channels, int(container.FramesAt(length, audioengine.OpusRate)), signal(audioengine.OpusRate))
			}
			handleErr(err)
			m.Cues = lo.Must(flags.GetBool("cues"))
			m.CodecDelay = uint64(lo.Must(flags.GetDuration("delay")))
			handleErr(m.WriteFile(fs, out))

		default:
			handleErr(fmt.Errorf("cannot generate .%s, use .wav, .mka or .webm", ext))
		}
		cmd.Printf(">> wrote %s\n", out)
	},
}

// transcode decodes from with the playback engine and re-encodes it as Opus.
func transcode(fs afero.Fs, from string, channels int) (fixture.Matroska, error) {
	src, err := engine.OpenFile(fs, from, engine.DefaultOptions())
	if err != nil {
		return fixture.Matroska{}, err
	}
	defer src.Close()

	var stream beep.Streamer = src
	if rate := src.SampleRate(); rate != audioengine.OpusRate {
		stream = beep.Resample(4, beep.SampleRate(rate), audioengine.OpusRate, src)
	}
	return fixture.EncodeOpus(stream, channels)
}
