package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

type DeleteCmd struct {
	*GlobalFlags
}

func NewDeleteCmd(flags *GlobalFlags) *cobra.Command {
	cmd := &DeleteCmd{GlobalFlags: flags}
	return &cobra.Command{
		Use:   "delete CUSTOMER_ID",
		Short: "Deletes a customer profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Run(c.Context(), c.OutOrStdout(), args[0])
		},
	}
}

func (cmd *DeleteCmd) Run(ctx context.Context, out io.Writer, customerID string) error {
	client, err := cmd.newClient()
	if err != nil {
		return err
	}

	res, err := client.Delete(ctx, customerID)
	if err != nil {
		return err
	}
	return cmd.wait(ctx, out, res)
}
