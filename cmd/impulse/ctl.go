/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"errors"
	"io"
	"strings"
	"time"

	"impulse/internal/config"
	"impulse/internal/ipc"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(ctlCmd)
}

var ctlCmd = &cobra.Command{
	Use:   "ctl [command]",
	Short: "Send a command to a running server, or open a control shell",
	Example: "  impulse ctl STATUS\n" +
		"  impulse ctl PLAY ~/Music/song.flac\n" +
		"  impulse ctl SEEK -10",
	Run: func(cmd *cobra.Command, args []string) {
		s := config.Load()
		c, err := ipc.Dial(s.Socket, time.Second)
		handleErr(err)
		defer c.Close()

		// 1. One shot
		if len(args) > 0 {
			reply, err := c.Send(strings.Join(args, " "))
			handleErr(err)
			cmd.Println(reply)
			if strings.HasPrefix(reply, "ERR") {
				handleErr(errors.New(reply))
			}
			return
		}

		// 2. Shell
		rl, err := readline.NewEx(&readline.Config{
			Prompt: "impulse> ",
			AutoComplete: readline.NewPrefixCompleter(
				readline.PcItem("PLAY"),
				readline.PcItem("PAUSE"),
				readline.PcItem("RESUME"),
				readline.PcItem("TOGGLE"),
				readline.PcItem("STOP"),
				readline.PcItem("SEEK"),
				readline.PcItem("VOLUME"),
				readline.PcItem("STATUS"),
				readline.PcItem("META"),
				readline.PcItem("WHOAMI"),
				readline.PcItem("PING"),
			),
		})
		handleErr(err)
		defer rl.Close()

		out := rl.Stdout()
		c.OnEvent = func(line string) { io.WriteString(out, "EVENT "+line+"\n") }
		for {
			line, err := rl.Readline()
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.EqualFold(line, "QUIT") {
				return
			}
			reply, err := c.Send(line)
			if err != nil {
				io.WriteString(out, "SOCKET CLOSED\n")
				return
			}
			io.WriteString(out, reply+"\n")
		}
	},
}
