/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Client speaks the line protocol. Replies arrive in command order; EVENT
// lines pushed by the server in between are handed to OnEvent.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	OnEvent func(line string)
}

func Dial(path string, timeout time.Duration) (*Client, error) {
	c, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	return NewClient(c), nil
}

func NewClient(c net.Conn) *Client {
	return &Client{conn: c, r: bufio.NewReader(c)}
}

// Send writes one command and waits for its reply line.
func (c *Client) Send(cmd string) (string, error) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return "", errors.New("ipc: empty command")
	}
	if _, err := io.WriteString(c.conn, cmd+"\n"); err != nil {
		return "", err
	}
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, "EVENT ") {
			if c.OnEvent != nil {
				c.OnEvent(strings.TrimPrefix(line, "EVENT "))
			}
			continue
		}
		return line, nil
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}
