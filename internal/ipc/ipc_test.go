/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package ipc

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"impulse/internal/fixture"
	"impulse/internal/metadata"
	"impulse/internal/output"
	"impulse/internal/player"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlayer(t *testing.T) *player.Controller {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fixture.WAV{Rate: 8000, Channels: 1, BitDepth: 16, Frames: 8000 * 10}.WriteFile(fs, "song one.wav"))
	require.NoError(t, fixture.PCMMatroska(48000, 2, 48000*2, 960, nil).WriteFile(fs, "nocues.mka"))
	require.NoError(t, afero.WriteFile(fs, "empty.wav", nil, 0o644))
	return player.New(output.NewNullDevice(48000), player.WithFs(fs), player.WithExtractor(metadata.NewExtractor(fs)))
}

// pipe connects a client to s over an in-memory conn.
func pipe(t *testing.T, s *Server) *Client {
	t.Helper()
	a, b := net.Pipe()
	go s.ServeConn(b)
	c := NewClient(a)
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *Client, cmd string) string {
	t.Helper()
	reply, err := c.Send(cmd)
	require.NoError(t, err)
	return reply
}

func TestReadOnlyCommands(t *testing.T) {
	s := NewServer(newPlayer(t))
	c := pipe(t, s)

	assert.Equal(t, "Pong", send(t, c, "ping"))
	assert.Equal(t, "impulse V.1.0", send(t, c, "ABOUT"))
	assert.Equal(t, "OBSERVER", send(t, c, "WHOAMI"))
	assert.Equal(t, "ERR NO_METADATA", send(t, c, "META"))

	var st player.Status
	require.NoError(t, json.Unmarshal([]byte(send(t, c, "STATUS")), &st))
	assert.Equal(t, player.StateIdle, st.State)
	assert.Nil(t, st.Progress)
}

func TestControlCommands(t *testing.T) {
	p := newPlayer(t)
	s := NewServer(p)
	c := pipe(t, s)

	assert.Equal(t, "Track Playing", send(t, c, "PLAY song one.wav"))
	assert.Equal(t, "OWNER", send(t, c, "WHOAMI"))
	assert.True(t, p.IsPlaying())

	var md metadata.TrackMetadata
	require.NoError(t, json.Unmarshal([]byte(send(t, c, "META")), &md))
	assert.Equal(t, 10*time.Second, md.Duration)

	assert.Equal(t, "Paused", send(t, c, "PAUSE"))
	assert.True(t, p.IsPaused())
	assert.Equal(t, "Resume Playing", send(t, c, "RESUME"))
	assert.False(t, p.IsPaused())
	assert.Equal(t, "Toggled", send(t, c, "TOGGLE"))
	assert.True(t, p.IsPaused())

	assert.Equal(t, "Seeked", send(t, c, "SEEK +3"))
	assert.Equal(t, "Seeked", send(t, c, "SEEK -10"))
	pos, _ := p.PositionAndProgress()
	assert.Equal(t, time.Duration(0), pos)
	assert.Equal(t, "ERR SEEK OUT_OF_RANGE", send(t, c, "SEEK 60"))
	assert.Equal(t, "ERR ARG", send(t, c, "SEEK soon"))

	assert.Equal(t, "OK", send(t, c, "VOLUME 0.3"))
	assert.Equal(t, 0.3, p.Volume())
	assert.Equal(t, "ERR ARG", send(t, c, "VOLUME loud"))

	assert.Equal(t, "Stopped", send(t, c, "STOP"))
	assert.True(t, p.CurrentTrack().IsAbsent())
	assert.Equal(t, "ERR UNKNOWN", send(t, c, "DANCE"))
}

func TestPlayErrors(t *testing.T) {
	s := NewServer(newPlayer(t))
	c := pipe(t, s)

	assert.Equal(t, "ERR ARG", send(t, c, "PLAY"))
	assert.Equal(t, "ERR PLAY NOT_FOUND", send(t, c, "PLAY missing.wav"))
	assert.Equal(t, "ERR PLAY EMPTY_FILE", send(t, c, "PLAY empty.wav"))

	assert.Equal(t, "Track Playing", send(t, c, "PLAY nocues.mka"))
	assert.Equal(t, "ERR SEEK UNSUPPORTED", send(t, c, "SEEK 1"))
}

func TestSingleOwner(t *testing.T) {
	p := newPlayer(t)
	s := NewServer(p)
	first := pipe(t, s)
	second := pipe(t, s)

	assert.Equal(t, "Paused", send(t, first, "PAUSE"))
	assert.Equal(t, "ERR CONTROL_LOCKED", send(t, second, "PLAY song one.wav"))
	assert.Equal(t, "Pong", send(t, second, "PING"))
	assert.True(t, p.CurrentTrack().IsAbsent())

	require.NoError(t, first.Close())
	assert.Eventually(t, func() bool {
		reply, err := second.Send("PLAY song one.wav")
		return err == nil && reply == "Track Playing"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "OWNER", send(t, second, "WHOAMI"))
}

func TestServeOverSocket(t *testing.T) {
	p := newPlayer(t)
	s := NewServer(p)
	path := filepath.Join(t.TempDir(), "impulse.sock")
	require.NoError(t, s.Listen(path))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	c, err := Dial(path, time.Second)
	require.NoError(t, err)
	defer c.Close()

	events := make(chan string, 8)
	c.OnEvent = func(line string) { events <- line }

	assert.Equal(t, "Pong", send(t, c, "PING"))
	assert.Equal(t, "Track Playing", send(t, c, "PLAY song one.wav"))
	assert.Equal(t, "Stopped", send(t, c, "STOP"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestEmitGoesToOwnerOnly(t *testing.T) {
	s := NewServer(newPlayer(t))
	ownerSide, serverSide := net.Pipe()
	defer ownerSide.Close()
	defer serverSide.Close()

	// no owner yet
	s.emit(player.Status{State: player.StateIdle})

	require.True(t, s.claimOwner(serverSide))
	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := ownerSide.Read(buf)
		got <- string(buf[:n])
	}()
	s.emit(player.Status{State: player.StateFinished, Track: "a.wav"})

	select {
	case line := <-got:
		assert.Contains(t, line, "EVENT ")
		assert.Contains(t, line, `"state":"finished"`)
	case <-time.After(time.Second):
		t.Fatal("no event written")
	}
}
