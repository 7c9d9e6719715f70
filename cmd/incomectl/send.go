package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fd1az/starfire-income/pkg/incomeclient"
)

type sendOptions struct {
	format   string
	amount   string
	total    string
	currency string
	model    string
	message  string
	tokens   []int64
}

func newSendCmd(root *rootOptions) *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one income report",
		Example: "  incomectl send --amount 0.0012 --total 10.5 --model llama3\n" +
			"  incomectl send --format text --amount 12.50",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := opts.income()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
			defer cancel()

			c := root.client(cmd)
			if err := c.Connect(ctx); err != nil {
				return err
			}
			defer c.Close()

			if err := c.SendIncome(ctx, in); err != nil {
				return fmt.Errorf("send income: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "sent %s income %s\n", in.Format, in.Amount.String())
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.format, "format", string(incomeclient.FormatStructured), "report format: structured, legacy or text")
	f.StringVar(&opts.amount, "amount", "", "income amount for this report")
	f.StringVar(&opts.total, "total", "", "running total (structured only)")
	f.StringVar(&opts.currency, "currency", "", "currency symbol or code")
	f.StringVar(&opts.model, "model", "", "model that produced the income")
	f.StringVar(&opts.message, "message", "", "free-form message")
	f.Int64SliceVar(&opts.tokens, "tokens", nil, "prompt,completion token counts")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func (o *sendOptions) income() (incomeclient.Income, error) {
	in := incomeclient.Income{
		Format:   incomeclient.Format(o.format),
		Currency: o.currency,
		Model:    o.model,
		Message:  o.message,
	}

	switch in.Format {
	case incomeclient.FormatStructured, incomeclient.FormatLegacy, incomeclient.FormatText:
	default:
		return in, fmt.Errorf("unknown format %q", o.format)
	}

	amount, err := decimal.NewFromString(o.amount)
	if err != nil {
		return in, fmt.Errorf("invalid --amount: %w", err)
	}
	in.Amount = amount

	if in.Format == incomeclient.FormatStructured {
		if o.total == "" {
			return in, fmt.Errorf("--total is required for structured reports")
		}
		total, err := decimal.NewFromString(o.total)
		if err != nil {
			return in, fmt.Errorf("invalid --total: %w", err)
		}
		in.TotalIncome = total
	}

	switch len(o.tokens) {
	case 0:
	case 2:
		in.Usage = &incomeclient.Usage{
			PromptTokens:     o.tokens[0],
			CompletionTokens: o.tokens[1],
			TotalTokens:      o.tokens[0] + o.tokens[1],
		}
	default:
		return in, fmt.Errorf("--tokens takes prompt,completion")
	}

	return in, nil
}
