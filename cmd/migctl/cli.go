package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"migdash/internal/eventbus"
	"migdash/internal/store"
)

type cli struct {
	client  *http.Client
	baseURL string
}

func newCLI() *cli {
	return &cli{client: &http.Client{}}
}

func (c *cli) rootCmd() *cobra.Command {
	command := &cobra.Command{
		Use:          "migctl",
		Short:        "CLI for interacting with the storage-migration dashboard server",
		Version:      version,
		SilenceUsage: true,
	}

	command.AddCommand(
		c.startCmd(),
		c.stopCmd(),
		c.statusCmd(),
		c.watchCmd(),
	)

	command.CompletionOptions.HiddenDefaultCmd = true

	defaultURL := "http://localhost:5000"
	if v := os.Getenv("MIGDASH_SERVER_URL"); v != "" {
		defaultURL = v
	}

	command.PersistentFlags().StringVar(
		&c.baseURL,
		"server-url",
		defaultURL,
		"Base URL of the migration dashboard server",
	)

	return command
}

func (c *cli) startCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "start [flags] SOURCE TARGET",
		Short:   "Start a migration from SOURCE to TARGET",
		Example: "  migctl start /mnt/old-array /mnt/new-array",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var action actionResponse

			err := c.postJSON(
				cmd.Context(),
				"/api/start",
				map[string]string{"source": args[0], "target": args[1]},
				&action,
			)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), action.Message)

			return nil
		},
	}

	return command
}

func (c *cli) stopCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "stop [flags]",
		Short:   "Request the active migration to stop",
		Example: "  migctl stop",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var action actionResponse

			if err := c.postJSON(cmd.Context(), "/api/stop", nil, &action); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), action.Message)

			return nil
		},
	}

	return command
}

func (c *cli) statusCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "status [flags]",
		Short:   "Show the current migration status",
		Example: "  migctl status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status statusResponse

			if err := c.getJSON(cmd.Context(), "/api/status", &status); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			fmt.Fprintf(w, "STATE\tSOURCE\tTARGET\tSTARTED\tENDED\tERROR\t\n")
			fmt.Fprintf(
				w,
				"%s\t%s\t%s\t%s\t%s\t%s\t\n",
				status.Status.State,
				orDash(status.Status.Source),
				orDash(status.Status.Target),
				formatTime(status.Status.StartTime),
				formatTime(status.Status.EndTime),
				orDash(status.Status.Error),
			)

			return w.Flush()
		},
	}

	return command
}

func (c *cli) watchCmd() *cobra.Command {
	var showHeartbeats bool

	command := &cobra.Command{
		Use:     "watch [flags]",
		Short:   "Stream live migration events",
		Example: "  migctl watch",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(
				cmd.Context(),
				http.MethodGet,
				c.baseURL+"/api/events",
				nil,
			)
			if err != nil {
				return err
			}

			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}

			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return apiErrorFromResponse(resp)
			}

			scanner := bufio.NewScanner(resp.Body)

			for scanner.Scan() {
				line := scanner.Text()
				if !strings.HasPrefix(line, "data: ") {
					continue
				}

				var event eventbus.Event

				if err := json.Unmarshal(
					[]byte(strings.TrimPrefix(line, "data: ")),
					&event,
				); err != nil {
					// Skip frames we don't understand rather than tearing
					// down the stream.
					continue
				}

				if event.Type == eventbus.EventHeartbeat && !showHeartbeats {
					continue
				}

				fmt.Fprintf(
					cmd.OutOrStdout(),
					"%s  %-9s %s\n",
					event.Timestamp.Format(time.RFC3339),
					event.Type,
					event.Message,
				)
			}

			if err := scanner.Err(); err != nil && cmd.Context().Err() == nil {
				return err
			}

			return nil
		},
	}

	command.Flags().BoolVar(
		&showHeartbeats,
		"heartbeats",
		false,
		"Also print heartbeat events",
	)

	return command
}

// Response shapes of the dashboard API.
type actionResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status store.JobStatus `json:"status"`
}

func (c *cli) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+path,
		nil,
	)
	if err != nil {
		return err
	}

	return c.do(req, out)
}

func (c *cli) postJSON(
	ctx context.Context,
	path string,
	body any,
	out any,
) error {
	var buf bytes.Buffer

	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+path,
		&buf,
	)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *cli) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return apiErrorFromResponse(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// apiErrorFromResponse surfaces the server's error message, falling back to
// the HTTP status when the body isn't a recognisable API error.
func apiErrorFromResponse(resp *http.Response) error {
	var apiErr struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)

	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s", apiErr.Error)
	}

	return fmt.Errorf("server returned %s", resp.Status)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}

	return t.Format(time.RFC3339)
}
