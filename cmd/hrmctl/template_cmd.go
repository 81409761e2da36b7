package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/competency-hub/modules/hrm"
	"github.com/iota-uz/competency-hub/modules/hrm/infrastructure/xlsx"
	"github.com/iota-uz/competency-hub/pkg/configuration"
)

func newTemplateCmd(root *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-template",
		Short: "Write the bulk employee import workbook for the acting role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(out) == "" {
				return withCode(exitUsage, fmt.Errorf("--out is required"))
			}
			conf, err := root.config()
			if err != nil {
				return err
			}
			defer conf.Unload()
			if err := runTemplate(cmd.Context(), conf, out); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Output .xlsx path (required)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runTemplate(ctx context.Context, conf *configuration.Configuration, out string) error {
	client, err := hrm.NewDirectoryClient(conf)
	if err != nil {
		return withCode(exitConfig, err)
	}
	tmpl := xlsx.NewImportTemplate(xlsx.TemplateOptions{
		Source:    hrm.NewScopeSource(conf, client),
		RoleScope: conf.RoleScope(),
		Logger:    conf.Logger(),
	})
	f, err := tmpl.Build(ctx)
	if err != nil {
		return withCode(exitUpstream, err)
	}
	defer func() { _ = f.Close() }()
	if err := f.SaveAs(out); err != nil {
		return withCode(exitIO, fmt.Errorf("save %s: %w", out, err))
	}
	return nil
}
