/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

// Package ipc exposes one Controller over a line oriented unix socket.
//
// The first connection that sends a control command owns the player until it
// disconnects. Every other connection is an observer and may only use the
// read-only commands.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"impulse/internal/container"
	"impulse/internal/log"
	"impulse/internal/metadata"
	"impulse/internal/player"
	"impulse/pkg/spec"

	"github.com/samber/mo"
	"github.com/sirupsen/logrus"
)

// Player is the part of *player.Controller the server drives.
type Player interface {
	Play(path string) error
	Pause()
	Resume()
	TogglePause()
	Stop()
	SeekForward(d time.Duration) error
	SeekBackward(d time.Duration) error
	SetVolume(v float64)
	Status() player.Status
	CurrentMetadata() mo.Option[metadata.TrackMetadata]
}

type Server struct {
	player Player

	mu    sync.Mutex
	owner net.Conn
	conns map[net.Conn]struct{}
	ln    net.Listener
}

func NewServer(p Player) *Server {
	return &Server{player: p, conns: map[net.Conn]struct{}{}}
}

// ===============================
// Ownership
// ===============================

func (s *Server) isOwner(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner == c
}

func (s *Server) claimOwner(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == nil {
		s.owner = c
		return true
	}
	return s.owner == c
}

// releaseOwner frees control. Playback carries on for the next owner.
func (s *Server) releaseOwner(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == c {
		s.owner = nil
	}
}

// ===============================
// Listener
// ===============================

// Listen binds the socket, replacing a stale file left by a previous run.
func (s *Server) Listen(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", path, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	log.Infof("ipc listening on %s", path)
	return nil
}

// Serve accepts connections until ctx is done and then closes every
// connection it handed out.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("ipc: Serve called before Listen")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
	}()
	go s.watch(ctx, spec.PollInterval)

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Warnf("ipc accept: %v", err)
			continue
		}
		go s.ServeConn(c)
	}
}

// watch reports state changes to the current owner as EVENT lines.
func (s *Server) watch(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	last := s.player.Status()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		st := s.player.Status()
		if st.State != last.State || st.Track != last.Track {
			s.emit(st)
		}
		last = st
	}
}

func (s *Server) emit(st player.Status) {
	s.mu.Lock()
	owner := s.owner
	s.mu.Unlock()
	if owner == nil {
		return
	}
	b, _ := json.Marshal(st)
	if _, err := owner.Write([]byte("EVENT " + string(b) + "\n")); err != nil {
		s.releaseOwner(owner)
	}
}

// ===============================
// Commands
// ===============================

// ServeConn runs the command loop for one client.
func (s *Server) ServeConn(c net.Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	entry := log.WithFields(logrus.Fields{"remote": c.RemoteAddr().String()})
	defer func() {
		s.releaseOwner(c)
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.Close()
	}()

	sc := bufio.NewScanner(c)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		// verb plus raw argument, paths may contain spaces
		parts := strings.SplitN(line, " ", 2)
		cmd := strings.ToUpper(parts[0])
		arg := ""
		if len(parts) == 2 {
			arg = strings.TrimSpace(parts[1])
		}

		reply := s.dispatch(c, cmd, arg)
		entry.Debugf("%s -> %s", cmd, reply)
		if _, err := c.Write([]byte(reply + "\n")); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(c net.Conn, cmd, arg string) string {
	// 1. Read-only commands
	switch cmd {
	case "ABOUT":
		return fmt.Sprintf("%s V.%d.%d", spec.AppName, spec.VersionMajor, spec.VersionMinor)
	case "PING":
		return "Pong"
	case "WHOAMI":
		if s.isOwner(c) {
			return "OWNER"
		}
		return "OBSERVER"
	case "STATUS":
		b, _ := json.Marshal(s.player.Status())
		return string(b)
	case "META":
		md, ok := s.player.CurrentMetadata().Get()
		if !ok {
			return "ERR NO_METADATA"
		}
		b, _ := json.Marshal(md)
		return string(b)
	}

	// 2. Control commands need ownership
	if !s.claimOwner(c) {
		return "ERR CONTROL_LOCKED"
	}

	switch cmd {
	case "PLAY":
		if arg == "" {
			return "ERR ARG"
		}
		if err := s.player.Play(arg); err != nil {
			return "ERR PLAY " + playErrCode(err)
		}
		return "Track Playing"

	case "PAUSE":
		s.player.Pause()
		return "Paused"

	case "RESUME":
		s.player.Resume()
		return "Resume Playing"

	case "TOGGLE":
		s.player.TogglePause()
		return "Toggled"

	case "STOP":
		s.player.Stop()
		return "Stopped"

	case "SEEK":
		secs, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "ERR ARG"
		}
		d := time.Duration(secs * float64(time.Second))
		if d < 0 {
			err = s.player.SeekBackward(-d)
		} else {
			err = s.player.SeekForward(d)
		}
		if err != nil {
			return "ERR SEEK " + seekErrCode(err)
		}
		return "Seeked"

	case "VOLUME":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "ERR ARG"
		}
		s.player.SetVolume(v)
		return "OK"
	}
	return "ERR UNKNOWN"
}

func playErrCode(err error) string {
	switch {
	case errors.Is(err, player.ErrEmptyFile):
		return "EMPTY_FILE"
	case errors.Is(err, os.ErrNotExist):
		return "NOT_FOUND"
	case errors.Is(err, container.ErrUnprobeable):
		return "UNPROBEABLE"
	case errors.Is(err, container.ErrNoTrack):
		return "NO_TRACK"
	}
	return "NO_DECODER"
}

func seekErrCode(err error) string {
	switch {
	case errors.Is(err, container.ErrSeekUnsupported):
		return "UNSUPPORTED"
	case errors.Is(err, container.ErrSeekOutOfRange):
		return "OUT_OF_RANGE"
	}
	return "FAILED"
}
