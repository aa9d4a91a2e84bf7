/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"impulse/internal/config"
	"impulse/internal/engine"
	"impulse/internal/log"
	"impulse/internal/output"
	"impulse/internal/player"
	"impulse/pkg/spec"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	developer_title    = "Developer Hardiyanto"
	developer_subtitle = "Build 27/12/2025 Ebiet Version"
)

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print the application version")

	rootCmd.PersistentFlags().Bool("null", false, "Discard audio instead of opening the sound card")
	lo.Must0(viper.BindPFlag(config.OutputNull, rootCmd.PersistentFlags().Lookup("null")))

	rootCmd.PersistentFlags().String("socket", "", "Unix socket of the control server")
	rootCmd.SilenceErrors = true
	lo.Must0(viper.BindPFlag(config.IPCSocket, rootCmd.PersistentFlags().Lookup("socket")))
}

var rootCmd = &cobra.Command{
	Use:   spec.AppName,
	Short: "Play local audio files from the terminal",
	Run: func(cmd *cobra.Command, args []string) {
		if lo.Must(cmd.Flags().GetBool("version")) {
			cmd.Printf("%s V.%d.%d\n", spec.AppName, spec.VersionMajor, spec.VersionMinor)
			cmd.Printf("%s %s\n", developer_title, developer_subtitle)
			return
		}
		_ = cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "[!] %s\n", strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}

func handleErr(err error) {
	if err != nil {
		log.Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "[!] %s\n", strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}

// openDevice opens the process wide output. The returned func releases it.
var openDevice = func(s config.Settings) (output.Device, func(), error) {
	if s.NullOutput {
		dev := output.NewNullDevice(s.SampleRate)
		ctx, cancel := context.WithCancel(context.Background())
		go dev.Run(ctx)
		return dev, func() {
			cancel()
			dev.Close()
		}, nil
	}

	dev, err := output.Speaker(s.SampleRate, s.Buffer)
	if err != nil {
		return nil, nil, err
	}
	return dev, func() { dev.Close() }, nil
}

func newController(s config.Settings, dev output.Device) *player.Controller {
	opts := engine.DefaultOptions()
	opts.MaxSkips = s.MaxSkips
	opts.Gapless = s.Gapless
	return player.New(dev, player.WithEngine(opts), player.WithVolume(s.Volume))
}
