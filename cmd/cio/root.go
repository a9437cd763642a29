package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/casetext/customerio-client/pkg/customerio"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
)

type GlobalFlags struct {
	SiteID  string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// SetGlobalFlags registers the flags shared by every subcommand.
func SetGlobalFlags(flags *flag.FlagSet) *GlobalFlags {
	g := &GlobalFlags{}

	flags.StringVar(&g.SiteID, "site-id", "", "customer.io site id. You can also use CUSTOMERIO_ID to set this")
	flags.StringVar(&g.APIKey, "api-key", "", "customer.io API key. You can also use CUSTOMERIO_KEY to set this")
	flags.DurationVar(&g.Timeout, "timeout", 30*time.Second, "How long to wait for customer.io to answer")
	flags.StringVar(&g.BaseURL, "base-url", "", "Override scheme and host of the tracking API")
	_ = flags.MarkHidden("base-url")
	return g
}

func (g *GlobalFlags) newClient() (*customerio.Client, error) {
	siteID, apiKey := g.SiteID, g.APIKey
	if siteID == "" {
		siteID = os.Getenv("CUSTOMERIO_ID")
	}
	if apiKey == "" {
		apiKey = os.Getenv("CUSTOMERIO_KEY")
	}
	return customerio.New(siteID, apiKey, customerio.WithBaseURL(g.BaseURL))
}

// wait blocks on res for at most g.Timeout and reports success on out.
func (g *GlobalFlags) wait(ctx context.Context, out io.Writer, res *customerio.Result) error {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	if err := res.Wait(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "ok")
	return nil
}

func NewRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "cio",
		Short:         "Send identify, delete and track calls to customer.io",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func BuildRoot() *cobra.Command {
	rootCmd := NewRootCmd()
	globalFlags := SetGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(NewIdentifyCmd(globalFlags))
	rootCmd.AddCommand(NewDeleteCmd(globalFlags))
	rootCmd.AddCommand(NewTrackCmd(globalFlags))
	return rootCmd
}
