// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package launch

import "strings"

// lineKind is what a single gst-launch output line tells us.
type lineKind int

const (
	lineOther lineKind = iota
	lineBuildError
	linePlaying
	lineError
	lineErrorDebug
	lineEOS
	lineProgress
)

// classifyLine inspects one line of `gst-launch-1.0 -m` output.
func classifyLine(line string) lineKind {
	l := strings.TrimSpace(line)
	switch {
	case l == "":
		return lineOther
	case strings.Contains(l, "erroneous pipeline"),
		strings.Contains(l, "could not be constructed"),
		strings.Contains(l, "could not link"),
		strings.HasPrefix(l, "ERROR: pipeline could not"):
		return lineBuildError
	case strings.HasPrefix(l, "ERROR: from element"), strings.HasPrefix(l, "ERROR:"):
		return lineError
	case strings.HasPrefix(l, "Additional debug info:"):
		return lineErrorDebug
	case strings.HasPrefix(l, "Got EOS from element"):
		return lineEOS
	case strings.Contains(l, "progressreport"):
		return lineProgress
	case strings.HasPrefix(l, "New clock:"):
		return linePlaying
	case strings.Contains(l, "(state-changed)") &&
		strings.Contains(l, `from element "pipeline`) &&
		strings.Contains(l, "new-state=(GstState)GST_STATE_PLAYING"):
		return linePlaying
	}
	return lineOther
}

// errorDetail strips the gst-launch prefix from an error line.
func errorDetail(line string) string {
	l := strings.TrimSpace(line)
	for _, p := range []string{"ERROR: from element ", "ERROR: ", "WARNING: "} {
		if strings.HasPrefix(l, p) {
			return strings.TrimPrefix(l, p)
		}
	}
	return l
}
