package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dubber/internal/api"
	"dubber/internal/config"
)

var errStatusAPIUnavailable = errors.New("status API not configured")

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := newStatusAPIClient(cfg)
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

type statusAPIClient struct {
	base  *url.URL
	token string
	http  *http.Client
}

func newStatusAPIClient(cfg *config.Config) (*statusAPIClient, error) {
	if cfg == nil {
		return nil, errStatusAPIUnavailable
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errStatusAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse paths.api_bind: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &statusAPIClient{
		base:  base,
		token: cfg.Paths.APIToken,
		http:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (c *statusAPIClient) Status(ctx context.Context) (api.DaemonStatus, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: "/api/status"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return api.DaemonStatus{}, fmt.Errorf("daemon not reachable at %s (start it with `dubber daemon`): %w", c.base.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return api.DaemonStatus{}, fmt.Errorf("status API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return api.DaemonStatus{}, fmt.Errorf("decode status: %w", err)
	}
	return payload, nil
}

func renderStatus(w io.Writer, status api.DaemonStatus) {
	fmt.Fprintf(w, "Running:  %s\n", yesNo(status.Running))
	fmt.Fprintf(w, "PID:      %d\n", status.PID)
	fmt.Fprintf(w, "Database: %s\n", status.DatabasePath)
	fmt.Fprintf(w, "Lock:     %s\n", status.LockFilePath)
	fmt.Fprintln(w)

	statuses := make([]string, 0, len(status.JobCounts))
	for name := range status.JobCounts {
		statuses = append(statuses, name)
	}
	sort.Strings(statuses)
	countRows := make([][]string, 0, len(statuses))
	for _, name := range statuses {
		countRows = append(countRows, []string{name, strconv.Itoa(status.JobCounts[name])})
	}
	writeRows(w, []string{"Status", "Jobs"}, countRows, []columnAlignment{alignLeft, alignRight})
	fmt.Fprintln(w)

	stageRows := make([][]string, 0, len(status.StageHealth))
	for _, h := range status.StageHealth {
		stageRows = append(stageRows, []string{h.Name, yesNo(h.Ready), h.Detail})
	}
	writeRows(w, []string{"Stage", "Ready", "Detail"}, stageRows, nil)
	fmt.Fprintln(w)

	depRows := make([][]string, 0, len(status.Dependencies))
	for _, dep := range status.Dependencies {
		detail := dep.Detail
		if detail == "" {
			detail = dep.Version
		}
		depRows = append(depRows, []string{dep.Name, dep.Command, yesNo(dep.Available), detail})
	}
	writeRows(w, []string{"Dependency", "Command", "Available", "Detail"}, depRows, nil)
}
