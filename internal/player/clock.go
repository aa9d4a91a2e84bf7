/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package player

import (
	"time"

	"github.com/samber/mo"
)

// clock tracks playback position from wall time. The sink's own counters
// restart on pause and seek, so position is derived here instead.
//
// position = elapsed + (now - start) while a segment runs, elapsed otherwise.
type clock struct {
	start   mo.Option[time.Time]
	elapsed time.Duration
}

func (c *clock) position(now time.Time, paused bool) time.Duration {
	if start, ok := c.start.Get(); ok && !paused {
		if d := now.Sub(start); d > 0 {
			return c.elapsed + d
		}
	}
	return c.elapsed
}

// restart begins a new track.
func (c *clock) restart(now time.Time) {
	c.elapsed = 0
	c.start = mo.Some(now)
}

// freeze folds the running segment into elapsed.
func (c *clock) freeze(now time.Time) {
	c.elapsed = c.position(now, false)
	c.start = mo.None[time.Time]()
}

func (c *clock) resume(now time.Time) {
	c.start = mo.Some(now)
}

// jump records a successful seek to target.
func (c *clock) jump(now time.Time, target time.Duration, paused bool) {
	c.elapsed = target
	if paused {
		c.start = mo.None[time.Time]()
		return
	}
	c.start = mo.Some(now)
}

func (c *clock) reset() {
	c.elapsed = 0
	c.start = mo.None[time.Time]()
}
