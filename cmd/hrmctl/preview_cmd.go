package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/iota-uz/competency-hub/modules/hrm"
	"github.com/iota-uz/competency-hub/modules/hrm/domain/orglevel"
	"github.com/iota-uz/competency-hub/modules/hrm/services"
	"github.com/iota-uz/competency-hub/modules/hrm/services/cascade"
	"github.com/iota-uz/competency-hub/pkg/configuration"
	"github.com/iota-uz/competency-hub/pkg/eventbus"
)

type previewOptions struct {
	employeeID int64
	strategy   string
}

// snapshotLine is one published resolver state, reduced to what an operator
// needs to follow the load.
type snapshotLine struct {
	Cause    string            `json:"cause"`
	Version  uint64            `json:"version"`
	Phase    string            `json:"phase"`
	Selected map[string]*int64 `json:"selected"`
	Options  map[string]int    `json:"options"`
	Loading  []string          `json:"loading,omitempty"`
}

type finalLine struct {
	EmployeeID int64             `json:"employee_id"`
	Strategy   string            `json:"strategy"`
	Final      map[string]*int64 `json:"final"`
}

func newPreviewCmd(root *rootOptions) *cobra.Command {
	var opts previewOptions
	cmd := &cobra.Command{
		Use:   "preview-edit",
		Short: "Open an edit form for an employee and print every resolver state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.employeeID <= 0 {
				return withCode(exitUsage, fmt.Errorf("--employee must be a positive id"))
			}
			conf, err := root.config()
			if err != nil {
				return err
			}
			defer conf.Unload()
			return runPreview(cmd.Context(), conf, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().Int64Var(&opts.employeeID, "employee", 0, "Employee id (required)")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Edit load strategy: bootstrap or sequential (default from HRM_EDIT_LOAD_STRATEGY)")
	_ = cmd.MarkFlagRequired("employee")
	return cmd
}

func runPreview(ctx context.Context, conf *configuration.Configuration, out io.Writer, opts previewOptions) error {
	raw := opts.strategy
	if raw == "" {
		raw = conf.EditLoadStrategy
	}
	strategy, err := services.ParseEditLoadStrategy(raw)
	if err != nil {
		return withCode(exitUsage, err)
	}
	client, err := hrm.NewDirectoryClient(conf)
	if err != nil {
		return withCode(exitConfig, err)
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	var (
		mu       sync.Mutex
		writeErr error
	)
	write := func(v any) {
		mu.Lock()
		defer mu.Unlock()
		if writeErr == nil {
			writeErr = enc.Encode(v)
		}
	}

	bus := eventbus.NewEventPublisher(conf.Logger())
	unsubscribe := bus.Subscribe(func(e *cascade.ChangedEvent) {
		write(newSnapshotLine(e))
	})
	defer unsubscribe()

	form, err := services.OpenEdit(ctx, services.EmployeeFormOptions{
		Directory: hrm.NewScopeSource(conf, client),
		API:       client,
		RoleScope: conf.RoleScope(),
		Strategy:  strategy,
		Events:    bus,
		Logger:    conf.Logger(),
	}, opts.employeeID)
	if err != nil {
		return withCode(exitUpstream, err)
	}
	defer form.Close()
	form.Resolver().Wait()

	write(finalLine{
		EmployeeID: opts.employeeID,
		Strategy:   string(strategy),
		Final:      byKey(form.Resolver().Snapshot().Selected),
	})
	if writeErr != nil {
		return withCode(exitIO, fmt.Errorf("write output: %w", writeErr))
	}
	return nil
}

func newSnapshotLine(e *cascade.ChangedEvent) snapshotLine {
	s := e.Snapshot
	line := snapshotLine{
		Cause:    e.Cause,
		Version:  s.Version,
		Phase:    s.Phase.String(),
		Selected: byKey(s.Selected),
		Options:  make(map[string]int, orglevel.Count),
	}
	for _, level := range orglevel.All {
		line.Options[level.Key()] = len(s.Options[level])
		if s.Loading[level] {
			line.Loading = append(line.Loading, level.Key())
		}
	}
	return line
}

func byKey(ids [orglevel.Count]*int64) map[string]*int64 {
	out := make(map[string]*int64, orglevel.Count)
	for _, level := range orglevel.All {
		out[level.Key()] = orglevel.CloneID(ids[level])
	}
	return out
}
