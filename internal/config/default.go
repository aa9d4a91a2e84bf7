/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package config

import (
	"os"
	"path/filepath"

	"impulse/pkg/spec"
)

type Field struct {
	Key         string
	Value       any
	Description string
}

var Default = map[string]Field{}

func define(f Field) {
	Default[f.Key] = f
}

func init() {
	home, _ := os.UserHomeDir()

	define(Field{MusicDir, filepath.Join(home, "Music"), "Directory relative track paths are resolved against"})
	define(Field{Volume, 0.5, "Initial volume in [0, 1]"})
	define(Field{SeekStep, spec.SeekStep, "Distance of one seek forward/backward"})
	define(Field{PollInterval, spec.PollInterval, "How often the shell refreshes position and detects track end"})
	define(Field{OutputSampleRate, spec.SampleRate, "Sample rate the output device is opened at"})
	define(Field{OutputBuffer, spec.OutputBuffer, "Output device buffer length"})
	define(Field{OutputNull, false, "Discard audio in real time instead of opening a sound card"})
	define(Field{DecodeMaxSkips, spec.MaxDecodeSkips, "Consecutive undecodable packets tolerated before a track is abandoned"})
	define(Field{DecodeGapless, true, "Trim encoder delay where the container reports it"})
	define(Field{LogFile, "", "Log file path; empty logs to the config directory"})
	define(Field{LogLevel, "info", "Log level: panic, fatal, error, warn, info, debug, trace"})
	define(Field{LogJSON, false, "Write logs as JSON"})
	define(Field{IPCSocket, filepath.Join(os.TempDir(), spec.AppName+".sock"), "Unix socket of the control server"})
}
