// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"regexp"
	"strings"
)

// Keyword tables are checked most-specific first.
var (
	authKeywords = []string{
		"unauthorized", "forbidden", "authentication", "credentials",
	}
	notFoundKeywords = []string{
		"not found", "no such", "does not exist",
	}
	codecKeywords = []string{
		"codec", "decode", "decoder", "encoder", "caps", "not-negotiated",
		"no element", "missing plugin", "format",
	}
	resourceKeywords = []string{
		"busy", "resource", "permission denied", "no space", "address already in use",
	}
	networkKeywords = []string{
		"connection", "timeout", "timed out", "unreachable", "network", "dns",
		"resolve", "socket", "tcp", "udp", "rtsp", "could not connect",
		"failed to connect", "refused",
	}

	// Status codes count only as standalone tokens, never inside hosts,
	// ports or paths.
	authCode     = regexp.MustCompile(`(?:^|[^\w.:/-])40[13](?:$|[^\w.:/-])`)
	notFoundCode = regexp.MustCompile(`(?:^|[^\w.:/-])404(?:$|[^\w.:/-])`)
	urlToken     = regexp.MustCompile(`[a-z][a-z0-9+.-]*://\S+`)
)

// ClassifyDetail maps an engine error text to a FaultClass.
// GStreamer errors carry no stable domain code through the launch tool,
// so classification is keyword based.
func ClassifyDetail(detail string) FaultClass {
	s := strings.ToLower(detail)
	if s == "" {
		return FaultUnknown
	}
	s = urlToken.ReplaceAllString(s, "<url>")
	switch {
	case containsAny(s, authKeywords) || authCode.MatchString(s):
		return FaultAuth
	case containsAny(s, notFoundKeywords) || notFoundCode.MatchString(s):
		return FaultNotFound
	case containsAny(s, codecKeywords):
		return FaultCodec
	case containsAny(s, resourceKeywords):
		return FaultResource
	case containsAny(s, networkKeywords):
		return FaultNetwork
	}
	return FaultUnknown
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
