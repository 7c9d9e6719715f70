package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fd1az/starfire-income/internal/logger"
	"github.com/fd1az/starfire-income/internal/wsconn"
)

func newEventsCmd(root *rootOptions) *cobra.Command {
	eventsURL := os.Getenv("INCOME_EVENTS_URL")
	if eventsURL == "" {
		eventsURL = "ws://127.0.0.1:8081/events"
	}
	var count int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream the server's live notification feed as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logger.New(cmd.ErrOrStderr(), logger.ParseLevel(root.logLevel), "incomectl", nil)

			c := wsconn.New(wsconn.DefaultConfig(eventsURL), log)
			if err := c.Connect(ctx); err != nil {
				return err
			}
			defer c.Close()

			seen := 0
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg, ok := <-c.Messages():
					if !ok {
						return fmt.Errorf("event feed closed")
					}
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(msg)); err != nil {
						return err
					}
					seen++
					if count > 0 && seen >= count {
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&eventsURL, "url", eventsURL, "WebSocket URL of the event feed")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many events (0 = run until interrupted)")
	return cmd
}
