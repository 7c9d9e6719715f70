package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fd1az/starfire-income/internal/apperror"
	"github.com/fd1az/starfire-income/pkg/incomeclient"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect and print every price configuration the server pushes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c := root.client(cmd)
			if err := c.Connect(ctx); err != nil {
				return err
			}
			defer c.Close()

			for {
				pc, err := c.ReceivePrices(ctx)
				if err != nil {
					if ctx.Err() != nil || apperror.HasCode(err, apperror.CodeConnectionClosed) {
						return nil
					}
					return err
				}
				if err := printPrices(cmd.OutOrStdout(), pc); err != nil {
					return err
				}
				if once {
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "exit after the first price message")
	return cmd
}

func printPrices(w io.Writer, pc *incomeclient.PriceConfig) error {
	if pc == nil {
		return errors.New("nil price config")
	}
	fmt.Fprintf(w, "prices @ %s\n", time.Unix(pc.Timestamp, 0).UTC().Format(time.RFC3339))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tENGINE\tIPPM\tOPPM")
	for _, mp := range pc.Data {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mp.Model, mp.Engine, mp.IPPM, mp.OPPM)
	}
	return tw.Flush()
}
