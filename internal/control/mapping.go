// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/mtxstreamer/internal/config"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
)

// ErrIgnored is returned by Map for events that do not translate to a state.
var ErrIgnored = errors.New("control event ignored")

// Decision is the state an inbound event asks for.
type Decision struct {
	Kind model.StateKind
	// Source overrides the configured live source when set.
	Source string
}

// Mapper translates control events using an ordered rule table.
// The first matching rule wins.
type Mapper struct {
	rules []config.MappingRule
}

func NewMapper(rules []config.MappingRule) *Mapper {
	return &Mapper{rules: rules}
}

// Map resolves ev. The payload is either an object carrying the rule field
// (and optionally "source") or a bare string used as the field value.
func (m *Mapper) Map(ev model.ControlEvent) (Decision, error) {
	fields, bare, err := decodePayload(ev.Payload)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %s: %v", ErrIgnored, ev.Name, err)
	}

	known := false
	for _, r := range m.rules {
		if r.Event != ev.Name {
			continue
		}
		known = true

		value, ok := bare, bare != ""
		if fields != nil {
			value, ok = stringField(fields, r.Field)
		}
		if !ok {
			continue
		}
		if r.Value != "" && !strings.EqualFold(strings.TrimSpace(value), r.Value) {
			continue
		}

		state := r.State
		if state == "" {
			state = value
		}
		kind, err := model.ParseStateKind(state)
		if err != nil {
			return Decision{}, fmt.Errorf("%w: %s: %v", ErrIgnored, ev.Name, err)
		}
		d := Decision{Kind: kind}
		if kind == model.StateLive && fields != nil {
			d.Source, _ = stringField(fields, "source")
		}
		return d, nil
	}

	if !known {
		return Decision{}, fmt.Errorf("%w: unknown event %q", ErrIgnored, ev.Name)
	}
	return Decision{}, fmt.Errorf("%w: %s: no rule matches payload", ErrIgnored, ev.Name)
}

func decodePayload(raw json.RawMessage) (map[string]any, string, error) {
	if len(raw) == 0 {
		return nil, "", errors.New("empty payload")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return nil, s, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, "", fmt.Errorf("payload is neither string nor object")
	}
	return obj, "", nil
}

func stringField(obj map[string]any, key string) (string, bool) {
	v, ok := obj[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}
