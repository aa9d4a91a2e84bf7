/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package log

import (
	"bytes"
	"testing"

	"impulse/internal/config"

	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

func TestLog(t *testing.T) {
	Convey("Logging", t, func() {
		viper.Reset()
		var buf bytes.Buffer

		Convey("Is silent before setup", func() {
			Disable()
			Infof("hidden %d", 1)
			WithFields(logrus.Fields{"k": "v"}).Info("hidden")
			So(buf.Len(), ShouldEqual, 0)
		})

		Convey("Writes text at the configured level", func() {
			viper.Set(config.LogLevel, "warn")
			So(SetupWriter(&buf), ShouldBeNil)
			Infof("skipped")
			Warnf("seek rejected: %s", "x.wav")
			So(buf.String(), ShouldContainSubstring, "seek rejected: x.wav")
			So(buf.String(), ShouldNotContainSubstring, "skipped")
		})

		Convey("Writes json when asked", func() {
			viper.Set(config.LogJSON, true)
			viper.Set(config.LogLevel, "bogus")
			So(SetupWriter(&buf), ShouldBeNil)
			WithFields(logrus.Fields{"path": "a.wav"}).Info("play")
			So(buf.String(), ShouldContainSubstring, `"path":"a.wav"`)
			So(logrus.GetLevel(), ShouldEqual, logrus.InfoLevel)
		})

		Reset(Disable)
	})
}
