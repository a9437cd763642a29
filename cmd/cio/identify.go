package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

type IdentifyCmd struct {
	*GlobalFlags

	Attributes map[string]string
}

func NewIdentifyCmd(flags *GlobalFlags) *cobra.Command {
	cmd := &IdentifyCmd{GlobalFlags: flags}
	identifyCmd := &cobra.Command{
		Use:   "identify CUSTOMER_ID EMAIL",
		Short: "Creates or updates a customer profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Run(c.Context(), c.OutOrStdout(), args[0], args[1])
		},
	}

	identifyCmd.Flags().StringToStringVar(&cmd.Attributes, "attr", nil, "Profile attribute as key=value, can be repeated")
	return identifyCmd
}

func (cmd *IdentifyCmd) Run(ctx context.Context, out io.Writer, customerID, email string) error {
	client, err := cmd.newClient()
	if err != nil {
		return err
	}

	attrs := make(map[string]any, len(cmd.Attributes))
	for k, v := range cmd.Attributes {
		attrs[k] = v
	}

	res, err := client.Identify(ctx, customerID, email, attrs)
	if err != nil {
		return err
	}
	return cmd.wait(ctx, out, res)
}
