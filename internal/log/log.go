/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

// Package log proxies logrus. Nothing is written until Setup has routed
// output to a file, since the terminal belongs to the shell UI.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"impulse/internal/config"
	"impulse/internal/filesystem"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var enabled bool

func Setup() error {
	path := config.LogPath()
	if err := filesystem.API().MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("log dir: %w", err)
	}
	f, err := filesystem.API().OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	return SetupWriter(f)
}

// SetupWriter routes logs to w using the configured format and level.
func SetupWriter(w io.Writer) error {
	logrus.SetOutput(w)

	if viper.GetBool(config.LogJSON) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(viper.GetString(config.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	enabled = true
	return nil
}

func Disable() {
	enabled = false
}

// WithFields returns an entry that is discarded while logging is disabled.
func WithFields(fields logrus.Fields) *logrus.Entry {
	if !enabled {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		return discard.WithFields(fields)
	}
	return logrus.WithFields(fields)
}

func Error(args ...interface{}) {
	if enabled {
		logrus.Error(args...)
	}
}
func Errorf(format string, args ...interface{}) {
	if enabled {
		logrus.Errorf(format, args...)
	}
}
func Warn(args ...interface{}) {
	if enabled {
		logrus.Warn(args...)
	}
}
func Warnf(format string, args ...interface{}) {
	if enabled {
		logrus.Warnf(format, args...)
	}
}
func Info(args ...interface{}) {
	if enabled {
		logrus.Info(args...)
	}
}
func Infof(format string, args ...interface{}) {
	if enabled {
		logrus.Infof(format, args...)
	}
}
func Debug(args ...interface{}) {
	if enabled {
		logrus.Debug(args...)
	}
}
func Debugf(format string, args ...interface{}) {
	if enabled {
		logrus.Debugf(format, args...)
	}
}
