// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package control

import (
	"encoding/json"
	"testing"

	"github.com/ManuGH/mtxstreamer/internal/config"
	"github.com/ManuGH/mtxstreamer/internal/pipeline/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(name, payload string) model.ControlEvent {
	return model.ControlEvent{Name: name, Payload: json.RawMessage(payload)}
}

func TestDefaultMappings(t *testing.T) {
	m := NewMapper(config.DefaultMappings())
	cases := map[string]model.StateKind{
		`{"camera":"available"}`:   model.StateLive,
		`{"camera":"Live"}`:        model.StateLive,
		`{"camera":"absent"}`:      model.StateCameraAbsent,
		`{"camera":"missing"}`:     model.StateCameraAbsent,
		`{"camera":"disabled"}`:    model.StateCameraDisabled,
		`{"camera":"connecting"}`:  model.StateConnecting,
		`{"camera":"unavailable"}`: model.StateConnecting,
	}
	for payload, want := range cases {
		d, err := m.Map(event("camera", payload))
		require.NoError(t, err, payload)
		assert.Equal(t, want, d.Kind, payload)
	}
}

func TestMapLiveSourceOverride(t *testing.T) {
	m := NewMapper(config.DefaultMappings())
	d, err := m.Map(event("camera", `{"camera":"available","source":"rtsp://10.0.0.5/live"}`))
	require.NoError(t, err)
	assert.Equal(t, Decision{Kind: model.StateLive, Source: "rtsp://10.0.0.5/live"}, d)
}

func TestMapStateFromValue(t *testing.T) {
	m := NewMapper(config.DefaultMappings())

	d, err := m.Map(event("state", `"camera-disabled"`))
	require.NoError(t, err)
	assert.Equal(t, model.StateCameraDisabled, d.Kind)

	d, err = m.Map(event("state", `{"state":"connecting"}`))
	require.NoError(t, err)
	assert.Equal(t, model.StateConnecting, d.Kind)
}

func TestMapIgnoresUnknownInput(t *testing.T) {
	m := NewMapper(config.DefaultMappings())
	for _, ev := range []model.ControlEvent{
		event("weather", `{"camera":"available"}`),
		event("camera", `{"camera":"exploded"}`),
		event("camera", `{"other":"available"}`),
		event("camera", `42`),
		event("camera", ``),
		event("state", `"sideways"`),
	} {
		_, err := m.Map(ev)
		assert.ErrorIs(t, err, ErrIgnored, "%s %s", ev.Name, ev.Payload)
	}
}
