// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package launch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want lineKind
	}{
		{`WARNING: erroneous pipeline: no element "bogussrc"`, lineBuildError},
		{`ERROR: pipeline could not be constructed: no element "x".`, lineBuildError},
		{"Setting pipeline to PAUSED ...", lineOther},
		{"New clock: GstSystemClock", linePlaying},
		{`Got message #42 from element "pipeline0" (state-changed): GstMessageStateChanged, old-state=(GstState)GST_STATE_PAUSED, new-state=(GstState)GST_STATE_PLAYING, pending-state=(GstState)GST_STATE_VOID_PENDING;`, linePlaying},
		{`Got message #12 from element "x264enc0" (state-changed): GstMessageStateChanged, old-state=(GstState)GST_STATE_PAUSED, new-state=(GstState)GST_STATE_PLAYING;`, lineOther},
		{"ERROR: from element /GstPipeline:pipeline0/GstTCPClientSrc:tcpclientsrc0: Could not open resource for reading.", lineError},
		{"Additional debug info:", lineErrorDebug},
		{`Got EOS from element "pipeline0".`, lineEOS},
		{`Got message #80 from element "progressreport0" (element): progress, update=(boolean)true;`, lineProgress},
		{"progressreport0 (00:00:05): 5 seconds", lineProgress},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyLine(tt.line), tt.line)
	}
}

func TestErrorDetail(t *testing.T) {
	assert.Equal(t, "/GstPipeline:pipeline0/GstRTSPSrc:rtspsrc0: Unauthorized",
		errorDetail("ERROR: from element /GstPipeline:pipeline0/GstRTSPSrc:rtspsrc0: Unauthorized"))
	assert.Equal(t, `erroneous pipeline: no element "x"`, errorDetail(`WARNING: erroneous pipeline: no element "x"`))
}
