// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package services

import (
	"sync/atomic"
)

// RollingCounter hands out sequence counters 0..65535 and wraps around.
// It is only used when the rolling counter flag is on; safe for concurrent use.
type RollingCounter struct {
	next atomic.Uint32
}

// NewRollingCounter starts counting at start (taken mod 65536)
func NewRollingCounter(start int) *RollingCounter {
	counter := &RollingCounter{}
	counter.next.Store(uint32(start) % (maxSequenceCounter + 1))
	return counter
}

// Next returns the current value and advances.
// 2^32 is a multiple of 65536, so the uint32 overflow keeps the sequence intact.
func (c *RollingCounter) Next() int {
	return int((c.next.Add(1) - 1) % (maxSequenceCounter + 1))
}

// unreadyAfter consecutive transport failures mark the courier as not ready
const unreadyAfter = 3

// Vitals tracks how the inverter connection is doing, for the readiness probe
type Vitals struct {
	transportFailures atomic.Int64
	lastPoints        atomic.Int64
}

// Answered records an inverter call that got an HTTP answer
func (v *Vitals) Answered() {
	v.transportFailures.Store(0)
}

// Delivered records a reading with the given number of points
func (v *Vitals) Delivered(points int) {
	v.Answered()
	v.lastPoints.Store(int64(points))
}

// Lost records an inverter call that failed on the way
func (v *Vitals) Lost() {
	v.transportFailures.Add(1)
}

// Ready is false once the inverter was unreachable several times in a row
func (v *Vitals) Ready() bool {
	return v.transportFailures.Load() < unreadyAfter
}

func (v *Vitals) LastPoints() int {
	return int(v.lastPoints.Load())
}
