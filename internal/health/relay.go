// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/liberrors"
)

// RelayChecker sends an RTSP DESCRIBE for the relay path. The relay is an
// external component, so the check never reports unhealthy.
type RelayChecker struct {
	url     string
	timeout time.Duration
	// expect reports whether a pipeline should currently be publishing.
	expect func() bool
}

func NewRelayChecker(url string, timeout time.Duration, expect func() bool) *RelayChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RelayChecker{url: url, timeout: timeout, expect: expect}
}

func (c *RelayChecker) Name() string { return "relay" }

func (c *RelayChecker) Check(ctx context.Context) CheckResult {
	expecting := c.expect != nil && c.expect()

	medias, err := c.describe(ctx)
	switch {
	case err == nil:
		return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("path published (%d medias)", medias)}
	case isNotFound(err) && !expecting:
		return CheckResult{Status: StatusHealthy, Message: "path idle"}
	case isNotFound(err):
		return CheckResult{Status: StatusDegraded, Message: "path has no publisher", Error: err.Error()}
	default:
		return CheckResult{Status: StatusDegraded, Message: "relay unreachable", Error: err.Error()}
	}
}

func (c *RelayChecker) describe(ctx context.Context) (int, error) {
	u, err := base.ParseURL(c.url)
	if err != nil {
		return 0, fmt.Errorf("parse relay url: %w", err)
	}

	timeout := c.timeout
	if d, ok := ctx.Deadline(); ok {
		if left := time.Until(d); left < timeout {
			timeout = left
		}
	}
	client := gortsplib.Client{
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	if err := client.Start(u.Scheme, u.Host); err != nil {
		return 0, err
	}
	defer client.Close()

	type result struct {
		medias int
		err    error
	}
	done := make(chan result, 1)
	go func() {
		desc, _, err := client.Describe(u)
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{medias: len(desc.Medias)}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-done:
		return r.medias, r.err
	}
}

func isNotFound(err error) bool {
	var status liberrors.ErrClientBadStatusCode
	return errors.As(err, &status) && status.Code == base.StatusNotFound
}
