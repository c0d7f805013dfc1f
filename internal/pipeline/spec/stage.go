// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package spec

import (
	"strconv"
	"strings"
)

// Property is a single element property assignment.
type Property struct {
	Key   string
	Value string
}

// Stage is one element (or caps filter) in a linear pipeline.
// A stage with Caps set and no Factory renders as a caps filter.
type Stage struct {
	Factory string
	Props   []Property
	Caps    string
}

// Element builds a stage from a factory name and alternating key/value pairs.
func Element(factory string, kv ...string) Stage {
	st := Stage{Factory: factory}
	for i := 0; i+1 < len(kv); i += 2 {
		st.Props = append(st.Props, Property{Key: kv[i], Value: kv[i+1]})
	}
	return st
}

// CapsFilter builds a caps-only stage.
func CapsFilter(caps string) Stage {
	return Stage{Caps: caps}
}

// Prop returns the value of key and whether it was set.
func (s Stage) Prop(key string) (string, bool) {
	for _, p := range s.Props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// tokens renders the stage as gst-launch argv tokens.
func (s Stage) tokens() []string {
	if s.Factory == "" {
		return []string{s.Caps}
	}
	out := make([]string, 0, 1+len(s.Props))
	out = append(out, s.Factory)
	for _, p := range s.Props {
		out = append(out, p.Key+"="+quote(p.Value))
	}
	return out
}

func (s Stage) String() string {
	return strings.Join(s.tokens(), " ")
}

// quote wraps values that the gst-launch parser would otherwise split.
func quote(v string) string {
	if v == "" {
		return `""`
	}
	for _, r := range v {
		if !safeRune(r) {
			return strconv.Quote(v)
		}
	}
	return v
}

func safeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("._:/-+@%", r)
}
