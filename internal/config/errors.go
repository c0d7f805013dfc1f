// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "errors"

var (
	// ErrInvalidConfig classifies every configuration failure that must stop
	// the process at startup. Use errors.Is(err, ErrInvalidConfig).
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
	ErrUnknownConfigField = errors.New("unknown config field")
)
