package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fd1az/starfire-income/internal/health"
	"github.com/fd1az/starfire-income/internal/httpclient"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	healthURL := os.Getenv("INCOME_HEALTH_URL")
	if healthURL == "" {
		healthURL = "http://127.0.0.1:8081"
	}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query the server's health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := httpclient.New(
				httpclient.WithBaseURL(healthURL),
				httpclient.WithProviderName("incomed"),
				httpclient.WithRequestTimeout(root.timeout),
				httpclient.WithHeaders(map[string]string{"User-Agent": "incomectl/" + version}),
			)
			if err != nil {
				return err
			}

			var st health.Status
			resp, err := c.GetJSON(cmd.Context(), "/health", &st)
			if err != nil {
				return err
			}
			if err := printStatus(cmd.OutOrStdout(), st); err != nil {
				return err
			}
			if !resp.IsSuccess() {
				return fmt.Errorf("server unhealthy (status %d)", resp.StatusCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&healthURL, "health-url", healthURL, "base URL of the health server")
	return cmd
}

func printStatus(w io.Writer, st health.Status) error {
	if _, err := fmt.Fprintf(w, "%s (version %s, %s)\n", st.Status, st.Version, st.Timestamp); err != nil {
		return err
	}

	names := make([]string, 0, len(st.Checks))
	for name := range st.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		check := st.Checks[name]
		mark := "ok"
		if !check.Healthy {
			mark = "FAIL"
		}
		if _, err := fmt.Fprintf(w, "  %-16s %-4s %s\n", name, mark, check.Message); err != nil {
			return err
		}
	}
	return nil
}
