/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"impulse/internal/config"
	"impulse/internal/ipc"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Run the player behind the control socket",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := config.Load()
		dev, release, err := openDevice(s)
		if err != nil {
			return err
		}
		defer release()

		ctl := newController(s, dev)
		defer ctl.Stop()

		srv := ipc.NewServer(ctl)
		if err := srv.Listen(s.Socket); err != nil {
			return err
		}
		defer os.Remove(s.Socket)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cmd.Printf("listening on %s\n", s.Socket)
		return srv.Serve(ctx)
	},
}
