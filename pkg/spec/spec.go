/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package spec

import "time"

const (
	// === IDENTITY & VERSIONING ===
	AppName      = "impulse"
	VersionMajor = 1
	VersionMinor = 0

	// === ENGINE DEFAULTS ===
	// Used when a codec does not report its own layout.
	SampleRate = 48000
	Channels   = 2

	// Frames per packet for containers that carry raw or pre-decoded PCM.
	PacketFrames = 1152

	// Largest Opus frame: 120 ms at 48 kHz.
	OpusMaxFrame = 5760

	// Consecutive undecodable packets tolerated before a stream is abandoned.
	MaxDecodeSkips = 32

	// === CONTROL CADENCE ===
	PollInterval = 100 * time.Millisecond
	SeekStep     = 5 * time.Second
	OutputBuffer = 100 * time.Millisecond

	// === MAGIC MARKERS ===
	MagicRIFF = "RIFF"
	MagicWAVE = "WAVE"
	MagicFLAC = "fLaC"
	MagicOgg  = "OggS"
	MagicID3  = "ID3"
	MagicEBML = "\x1a\x45\xdf\xa3"

	// === EXTENSION HINTS ===
	ExtWAV  = "wav"
	ExtWAVE = "wave"
	ExtMP3  = "mp3"
	ExtFLAC = "flac"
	ExtOGG  = "ogg"
	ExtOGA  = "oga"
	ExtMKA  = "mka"
	ExtWEBM = "webm"
)
