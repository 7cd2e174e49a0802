package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/chenyanchen/armorch"
)

const (
	flagTarget = "target"
	flagAsync  = "async"
)

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create the declared resources",
		Args:  cobra.NoArgs,
		Example: `  # Create everything declared in armorch.yaml
  armorch apply

  # Create one registry and whatever it depends on
  armorch apply -f deploy.yaml --target registry/reg1`,
		RunE: runApply,
	}
	cmd.Flags().StringSlice(flagTarget, nil, "limit the apply to kind/name and its dependencies (repeatable)")
	cmd.Flags().Bool(flagAsync, false, "create independent resources concurrently")
	return cmd
}

func runApply(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := newTransport(ctx, cfg)
	if err != nil {
		return err
	}
	deployment, err := compile(cfg, client)
	if err != nil {
		return err
	}

	opts := cfg.ApplyOptions()
	if async, _ := cmd.Flags().GetBool(flagAsync); async {
		opts = append(opts, armorch.WithAsync())
	}
	targets, _ := cmd.Flags().GetStringSlice(flagTarget)
	if len(targets) > 0 {
		ids := make([]armorch.ID, 0, len(targets))
		for _, t := range targets {
			id, err := parseID(t)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		opts = append(opts, armorch.WithTargets(ids...))
	}

	report, err := deployment.Apply(ctx, opts...)
	if err != nil {
		return err
	}
	renderOutcomes(cmd.OutOrStdout(), report.Outcomes())

	failed, skipped := len(report.Failed()), len(report.Skipped())
	slogcontext.FromCtx(ctx).InfoContext(ctx, "apply finished",
		"resolved", len(report.Outcomes())-failed-skipped, "failed", failed, "skipped", skipped)
	if failed > 0 || skipped > 0 {
		return fmt.Errorf("apply: %d failed, %d skipped", failed, skipped)
	}
	return nil
}

func parseID(s string) (armorch.ID, error) {
	kind, name, ok := strings.Cut(s, "/")
	if !ok || kind == "" || name == "" {
		return armorch.ID{}, fmt.Errorf("invalid resource %q, want kind/name", s)
	}
	return armorch.ID{Kind: kind, Name: name}, nil
}

type identified interface {
	ID() string
}

func renderOutcomes(w io.Writer, outcomes []armorch.Outcome) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Resource", "State", "Detail"})
	for _, o := range outcomes {
		t.AppendRow(table.Row{o.Name, o.State.String(), detail(o)})
	}
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
}

func detail(o armorch.Outcome) string {
	switch o.State {
	case armorch.StateResolved:
		if r, ok := o.Result.(identified); ok {
			return r.ID()
		}
		return ""
	case armorch.StateSkipped:
		var skipped *armorch.SkippedError
		if errors.As(o.Err, &skipped) && skipped.Upstream != "" {
			return "upstream " + skipped.Upstream + " failed"
		}
	}
	if o.Err != nil {
		return o.Err.Error()
	}
	return ""
}
