/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package config

// === LIBRARY ===
const (
	MusicDir = "music_dir"
	Volume   = "volume"
)

// === CONTROL ===
const (
	SeekStep     = "seek.step"
	PollInterval = "poll.interval"
)

// === OUTPUT ===
const (
	OutputSampleRate = "output.sample_rate"
	OutputBuffer     = "output.buffer"
	OutputNull       = "output.null"
)

// === DECODE ===
const (
	DecodeMaxSkips = "decode.max_skips"
	DecodeGapless  = "decode.gapless"
)

// === LOGGING ===
const (
	LogFile  = "log.file"
	LogLevel = "log.level"
	LogJSON  = "log.json"
)

// === IPC ===
const (
	IPCSocket = "ipc.socket"
)
