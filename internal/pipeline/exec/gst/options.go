// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gst

import "time"

// EngineName is the value of engine.kind selecting this engine.
const EngineName = "gst"

// Options configures the in-process engine.
type Options struct {
	StartTimeout time.Duration
	StopTimeout  time.Duration
	// KillWait bounds the final transition to NULL.
	KillWait time.Duration
}

func (o Options) withDefaults() Options {
	if o.StartTimeout <= 0 {
		o.StartTimeout = 10 * time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
	if o.KillWait <= 0 {
		o.KillWait = 2 * time.Second
	}
	return o
}
