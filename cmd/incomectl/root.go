package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fd1az/starfire-income/internal/logger"
	"github.com/fd1az/starfire-income/pkg/incomeclient"
)

type rootOptions struct {
	addr     string
	timeout  time.Duration
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "incomectl",
		Short:        "Send income reports to an income server and watch price updates",
		SilenceUsage: true,
	}

	addr := os.Getenv("INCOME_ADDR")
	if addr == "" {
		addr = "127.0.0.1:19527"
	}
	rootCmd.PersistentFlags().StringVar(&opts.addr, "addr", addr, "income server address")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "connect timeout")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSendCmd(opts),
		newWatchCmd(opts),
		newStatusCmd(opts),
		newEventsCmd(opts),
	)

	return rootCmd
}

func (o *rootOptions) client(cmd *cobra.Command) *incomeclient.Client {
	log := logger.New(cmd.ErrOrStderr(), logger.ParseLevel(o.logLevel), "incomectl", nil)
	return incomeclient.New(incomeclient.DefaultConfig(o.addr), log)
}
