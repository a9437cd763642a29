package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type TrackCmd struct {
	*GlobalFlags

	Data string
}

func NewTrackCmd(flags *GlobalFlags) *cobra.Command {
	cmd := &TrackCmd{GlobalFlags: flags}
	trackCmd := &cobra.Command{
		Use:   "track CUSTOMER_ID EVENT_NAME",
		Short: "Records a named event for a customer",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Run(c.Context(), c.OutOrStdout(), args[0], args[1])
		},
	}

	trackCmd.Flags().StringVar(&cmd.Data, "data", "{}", "Event data as a JSON object")
	return trackCmd
}

func (cmd *TrackCmd) Run(ctx context.Context, out io.Writer, customerID, name string) error {
	var data map[string]any
	if err := json.Unmarshal([]byte(cmd.Data), &data); err != nil {
		return errors.Wrap(err, "parse --data")
	}

	client, err := cmd.newClient()
	if err != nil {
		return err
	}

	res, err := client.Track(ctx, customerID, name, data)
	if err != nil {
		return err
	}
	return cmd.wait(ctx, out, res)
}
