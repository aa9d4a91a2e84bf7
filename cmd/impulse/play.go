/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"impulse/internal/config"
	"impulse/internal/log"
	"impulse/internal/player"

	"github.com/chzyer/readline"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:          "play <file>...",
	Short:        "Play files in order in an interactive shell",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := config.Load()
		dev, release, err := openDevice(s)
		if err != nil {
			return err
		}
		defer release()

		sess := newSession(newController(s, dev), s, lo.Map(args, func(p string, _ int) string {
			return s.Resolve(p)
		}))
		return sess.run()
	},
}

// ===============================
// Session
// ===============================

// session is the queue in front of one Controller: which file is next and
// what each shell key does.
type session struct {
	ctl      *player.Controller
	settings config.Settings
	out      io.Writer

	mu    sync.Mutex
	queue []string
	index int
}

func newSession(ctl *player.Controller, s config.Settings, queue []string) *session {
	return &session{ctl: ctl, settings: s, out: os.Stdout, queue: queue, index: -1}
}

// playFrom starts the first playable track at or after i. Unplayable files
// are reported and skipped.
func (s *session) playFrom(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ; i < len(s.queue); i++ {
		path := s.queue[i]
		if err := s.ctl.Play(path); err != nil {
			fmt.Fprintf(s.out, "[!] skip %s: %v\n", filepath.Base(path), err)
			continue
		}
		s.index = i
		fmt.Fprintf(s.out, ">> [%d/%d] %s\n", i+1, len(s.queue), describe(s.ctl, path))
		return true
	}
	s.index = len(s.queue)
	return false
}

func (s *session) next() bool {
	s.mu.Lock()
	i := s.index + 1
	s.mu.Unlock()
	return s.playFrom(i)
}

// tick advances the queue when the current track has drained. It reports
// false once nothing is left to play. A stopped player waits for the shell.
func (s *session) tick() bool {
	if !s.ctl.IsFinished() || s.ctl.CurrentTrack().IsAbsent() {
		return true
	}
	return s.next()
}

// handle runs one shell command and reports whether the shell should quit.
func (s *session) handle(line string) bool {
	step := s.settings.SeekStep
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
	case "p":
		s.ctl.TogglePause()
	case "f":
		s.report(s.ctl.SeekForward(step))
	case "b":
		s.report(s.ctl.SeekBackward(step))
	case "+":
		s.ctl.SetVolume(s.ctl.Volume() + 0.1)
	case "-":
		s.ctl.SetVolume(s.ctl.Volume() - 0.1)
	case "n":
		if !s.next() {
			s.ctl.Stop()
			return true
		}
	case "s":
		s.ctl.Stop()
	case "r":
		s.mu.Lock()
		i := s.index
		s.mu.Unlock()
		s.playFrom(max(i, 0))
	case "q":
		return true
	default:
		fmt.Fprintln(s.out, "[P] Pause [F/B] Seek [+/-] Volume [N] Next [S] Stop [R] Replay [Q] Quit")
	}
	return false
}

func (s *session) report(err error) {
	if err != nil {
		fmt.Fprintf(s.out, "[!] %v\n", err)
	}
}

func (s *session) prompt() string {
	st := s.ctl.Status()
	icon := map[player.State]string{
		player.StateIdle:     "[-]",
		player.StatePlaying:  "[>]",
		player.StatePaused:   "[=]",
		player.StateFinished: "[.]",
	}[st.State]

	total := "--:--"
	if st.Duration > 0 {
		total = clockString(st.Duration)
	}
	return fmt.Sprintf("%s %s/%s vol %3.0f%% > ", icon, clockString(st.Position), total, st.Volume*100)
}

func (s *session) run() error {
	if !s.playFrom(0) {
		return errors.New("nothing in the queue could be played")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       "q",
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	s.out = rl.Stdout()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Poller: refresh the prompt and advance the queue
	go func() {
		t := time.NewTicker(s.settings.PollInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				rl.Close()
				return
			case <-t.C:
			}
			if !s.tick() {
				fmt.Fprintln(s.out, ">> end of queue")
				rl.Close()
				return
			}
			rl.SetPrompt(s.prompt())
			rl.Refresh()
		}
	}()

	// 2. Shell
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				break
			}
			log.Warnf("shell: %v", err)
			break
		}
		if s.handle(line) {
			break
		}
		rl.SetPrompt(s.prompt())
	}
	s.ctl.Stop()
	return nil
}

func describe(ctl *player.Controller, path string) string {
	md, ok := ctl.CurrentMetadata().Get()
	if !ok || md.Title == "" {
		return filepath.Base(path)
	}
	if md.Artist == "" {
		return md.Title
	}
	return md.Artist + " - " + md.Title
}

func clockString(d time.Duration) string {
	secs := int(d / time.Second)
	if secs >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
