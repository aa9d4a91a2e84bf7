/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

// Package config wires viper to the TOML config file, IMPULSE_* environment
// variables and the defaults table.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"impulse/internal/filesystem"
	"impulse/pkg/spec"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

const EnvConfigPath = "IMPULSE_CONFIG_PATH"

var EnvKeyReplacer = strings.NewReplacer(".", "_")

func Setup() error {
	viper.SetConfigName(spec.AppName)
	viper.SetConfigType("toml")
	viper.SetFs(filesystem.API())
	viper.AddConfigPath(Dir())

	viper.SetEnvPrefix(spec.AppName)
	viper.SetEnvKeyReplacer(EnvKeyReplacer)
	viper.AutomaticEnv()

	viper.SetTypeByDefaultValue(true)
	for name, field := range Default {
		viper.SetDefault(name, field.Value)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// Dir resolves the config directory, creating it when missing.
func Dir() string {
	if custom, ok := os.LookupEnv(EnvConfigPath); ok {
		return ensureDir(custom)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return ensureDir(filepath.Join(base, spec.AppName))
}

func LogPath() string {
	if p := viper.GetString(LogFile); p != "" {
		return p
	}
	dir := ensureDir(filepath.Join(Dir(), "logs"))
	return filepath.Join(dir, time.Now().Format("2006-01-02")+".log")
}

func ensureDir(path string) string {
	lo.Must0(filesystem.API().MkdirAll(path, os.ModePerm))
	return path
}

// Settings is a typed snapshot of the keys the player needs.
type Settings struct {
	MusicDir     string
	Volume       float64
	SeekStep     time.Duration
	PollInterval time.Duration
	SampleRate   int
	Buffer       time.Duration
	NullOutput   bool
	MaxSkips     int
	Gapless      bool
	Socket       string
}

func Load() Settings {
	return Settings{
		MusicDir:     viper.GetString(MusicDir),
		Volume:       lo.Clamp(viper.GetFloat64(Volume), 0, 1),
		SeekStep:     positive(viper.GetDuration(SeekStep), spec.SeekStep),
		PollInterval: positive(viper.GetDuration(PollInterval), spec.PollInterval),
		SampleRate:   positive(viper.GetInt(OutputSampleRate), spec.SampleRate),
		Buffer:       positive(viper.GetDuration(OutputBuffer), spec.OutputBuffer),
		NullOutput:   viper.GetBool(OutputNull),
		MaxSkips:     positive(viper.GetInt(DecodeMaxSkips), spec.MaxDecodeSkips),
		Gapless:      viper.GetBool(DecodeGapless),
		Socket:       viper.GetString(IPCSocket),
	}
}

// Resolve makes a relative track path absolute against the music directory.
func (s Settings) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || s.MusicDir == "" {
		return path
	}
	if _, err := filesystem.API().Stat(path); err == nil {
		return path
	}
	return filepath.Join(s.MusicDir, path)
}

func positive[T int | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}
