package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iota-uz/competency-hub/pkg/configuration"
)

type rootOptions struct {
	envFiles []string
}

// config loads configuration from the env files named by --env-file.
func (o *rootOptions) config() (*configuration.Configuration, error) {
	conf, err := configuration.Load(o.envFiles...)
	if err != nil {
		return nil, withCode(exitConfig, err)
	}
	return conf, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "hrmctl",
		Short:         "Employee assignment form service and tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env", ".env.local"}, "Env files to load when present")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newPreviewCmd(opts))
	cmd.AddCommand(newTemplateCmd(opts))
	return cmd
}

// Execute runs the root command under a context cancelled by SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}
