// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"time"

	"github.com/ManuGH/mtxstreamer/internal/config"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/cenkalti/backoff/v5"
)

// Resolver turns a state kind into a fully parameterised state.
type Resolver func(kind model.StateKind) (model.StreamState, bool)

// Policy decides how faults are retried and where they fall back to.
type Policy struct {
	MaxRetries   int
	RetryInitial time.Duration
	RetryMax     time.Duration
	// StableAfter resets the retry budget for handles that ran at least this long.
	StableAfter time.Duration
	// Fallback maps fault classes of a failing Live pipeline to safe states.
	Fallback map[model.FaultClass]model.StateKind
	Resolve  Resolver
}

// PolicyFromConfig builds a policy. Unknown table entries are skipped;
// config validation rejects them earlier.
func PolicyFromConfig(cfg config.FaultConfig, resolve Resolver) Policy {
	table := make(map[model.FaultClass]model.StateKind, len(cfg.Fallback))
	for class, state := range cfg.Fallback {
		kind, err := model.ParseStateKind(state)
		if err != nil || !model.FaultClass(class).Valid() {
			continue
		}
		table[model.FaultClass(class)] = kind
	}
	return Policy{
		MaxRetries:   cfg.MaxRetries,
		RetryInitial: cfg.RetryInitial,
		RetryMax:     cfg.RetryMax,
		StableAfter:  cfg.StableAfter,
		Fallback:     table,
		Resolve:      resolve,
	}
}

// FallbackFor returns the safe state for a failing state.
// Static states always fall back to connecting.
func (p Policy) FallbackFor(failing model.StreamState, class model.FaultClass) model.StreamState {
	kind := model.StateConnecting
	if failing.Kind == model.StateLive {
		if k, ok := p.Fallback[class]; ok {
			kind = k
		}
	}
	if p.Resolve != nil {
		if st, ok := p.Resolve(kind); ok {
			return st
		}
		if st, ok := p.Resolve(model.StateConnecting); ok {
			return st
		}
	}
	return model.StreamState{Kind: model.StateConnecting}
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.RetryInitial
	b.MaxInterval = p.RetryMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// budget counts retries for one state.
type budget struct {
	state    model.StreamState
	attempts int
	backoff  *backoff.ExponentialBackOff
}

func (p Policy) newBudget(state model.StreamState) budget {
	return budget{state: state, backoff: p.newBackOff()}
}

// next consumes one retry. ok is false once the budget is spent.
func (b *budget) next(limit int) (attempt int, delay time.Duration, ok bool) {
	if b.attempts >= limit {
		return b.attempts, 0, false
	}
	b.attempts++
	return b.attempts, b.backoff.NextBackOff(), true
}
