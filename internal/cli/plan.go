package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const flagFormat = "format"

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Validate the declared resources and print the creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			deployment, err := compile(cfg, nil)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"#", "Resource", "Depends On"})
			for i, id := range deployment.TopoOrder() {
				deps := deployment.DependenciesOf(id)
				names := make([]string, 0, len(deps))
				for _, dep := range deps {
					names = append(names, dep.String())
				}
				t.AppendRow(table.Row{i + 1, id.String(), strings.Join(names, ", ")})
			}
			style := table.StyleLight
			style.Options.DrawBorder = false
			t.SetStyle(style)
			t.Render()
			return nil
		},
	}
}

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph",
		Args:  cobra.NoArgs,
		Example: `  armorch graph --format dot | dot -Tsvg > graph.svg
  armorch graph --format mermaid`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			deployment, err := compile(cfg, nil)
			if err != nil {
				return err
			}
			graph := deployment.Graph()
			switch format, _ := cmd.Flags().GetString(flagFormat); format {
			case "dot":
				fmt.Fprint(cmd.OutOrStdout(), graph.DOT())
			case "mermaid":
				fmt.Fprint(cmd.OutOrStdout(), graph.Mermaid())
			default:
				return fmt.Errorf("invalid graph format: %s", format)
			}
			return nil
		},
	}
	cmd.Flags().String(flagFormat, "dot", "output format (dot, mermaid)")
	return cmd
}
