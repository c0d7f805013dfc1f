// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ManuGH/mtxstreamer/internal/config"
	"github.com/spf13/cobra"
)

type probeFlags struct {
	addr    string
	timeout time.Duration
}

func (p *probeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.addr, "addr", config.Defaults().HTTP.Listen, "address of the running streamer's HTTP listener")
	cmd.Flags().DurationVar(&p.timeout, "timeout", 5*time.Second, "request timeout")
}

func (p *probeFlags) get(path string) (*http.Response, error) {
	client := http.Client{Timeout: p.timeout}
	return client.Get("http://" + p.addr + path)
}

func newHealthcheckCmd() *cobra.Command {
	probe := &probeFlags{}
	var mode string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running streamer (for container health checks)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/healthz"
			if mode == "ready" {
				path = "/readyz"
			}

			resp, err := probe.get(path)
			if err != nil {
				return fmt.Errorf("healthcheck failed (network): %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("healthcheck failed (status): %s", resp.Status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Healthcheck successful (%s)\n", mode)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "ready", "healthcheck mode: ready (default) or live")
	probe.bind(cmd)
	return cmd
}

func newStatusCmd() *cobra.Command {
	probe := &probeFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the status report of a running streamer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := probe.get("/status")
			if err != nil {
				return fmt.Errorf("fetch status: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read status: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("fetch status: %s", resp.Status)
			}

			var out bytes.Buffer
			if err := json.Indent(&out, body, "", "  "); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			out.WriteByte('\n')
			_, err = out.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
	probe.bind(cmd)
	return cmd
}
