package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sceneforge/internal/daemon"
	"sceneforge/internal/persistence"
	"sceneforge/internal/production"
)

func newProductionCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "production",
		Aliases: []string{"prod"},
		Short:   "Manage stored productions",
	}

	cmd.AddCommand(newProductionListCommand(ctx))
	cmd.AddCommand(newProductionShowCommand(ctx))
	cmd.AddCommand(newProductionCreateCommand(ctx))
	cmd.AddCommand(newProductionImportCommand(ctx))
	cmd.AddCommand(newProductionDeleteCommand(ctx))
	cmd.AddCommand(newProductionExportCommand(ctx))

	return cmd
}

func newProductionListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored productions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(stack *daemon.Stack) error {
				rows, err := stack.Workspace.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(cmd, rows)
				}
				if len(rows) == 0 {
					fmt.Fprintln(out, "No productions")
					return nil
				}
				table := make([][]string, 0, len(rows))
				for _, row := range rows {
					ready := row.StatusCounts[production.StatusVideoReady]
					table = append(table, []string{
						row.ID,
						displayTitle(row.Title),
						string(row.Step),
						strconv.Itoa(row.SceneCount),
						fmt.Sprintf("%d/%d", ready, row.SceneCount),
						formatSeconds(row.TotalDuration),
						row.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Title", "Step", "Scenes", "Videos", "Duration", "Updated"},
					table,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newProductionShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a production and its scenes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(stack *daemon.Stack) error {
				session, err := stack.Workspace.Open(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				p := session.Snapshot()
				if asJSON {
					return writeJSON(cmd, p)
				}
				writeProductionDetail(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newProductionCreateCommand(ctx *commandContext) *cobra.Command {
	var title string
	var scenes []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a production from scene descriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := production.New(title)
			for _, description := range scenes {
				p.AppendScene(production.NewScene(description))
			}
			if len(p.Scenes) > 0 {
				p.Step = production.StepScenes
			}
			return ctx.withStack(func(stack *daemon.Stack) error {
				return createProduction(cmd, stack, p)
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Production title")
	cmd.Flags().StringArrayVarP(&scenes, "scene", "s", nil, "Scene description (repeatable)")
	return cmd
}

func newProductionImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <plan.yaml>",
		Short: "Create a production from a YAML scene plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read plan: %w", err)
			}
			plan, err := persistence.ParsePlan(data)
			if err != nil {
				return err
			}
			return ctx.withStack(func(stack *daemon.Stack) error {
				return createProduction(cmd, stack, plan.Production())
			})
		},
	}
}

func createProduction(cmd *cobra.Command, stack *daemon.Stack, p *production.Production) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid production: %w", err)
	}
	session, err := stack.Workspace.Create(cmd.Context(), p)
	if err != nil {
		return err
	}
	saved := session.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "Created production %s (%s, %d scenes)\n",
		saved.ID, displayTitle(saved.Title), len(saved.Scenes))
	return nil
}

func newProductionDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored production",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(stack *daemon.Stack) error {
				if err := stack.Workspace.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted production %s\n", args[0])
				return nil
			})
		},
	}
}

func newProductionExportCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a production as json or csv",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := production.ParseExportFormat(formatFlag)
			if err != nil {
				return err
			}
			return ctx.withStack(func(stack *daemon.Stack) error {
				session, err := stack.Workspace.Open(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return exportProduction(cmd.OutOrStdout(), outputPath, session.Snapshot(), format)
			})
		},
	}

	cmd.Flags().StringVarP(&formatFlag, "format", "f", "json", "Export format: json or csv")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to this file or directory instead of stdout")
	return cmd
}

func exportProduction(stdout io.Writer, outputPath string, p *production.Production, format production.ExportFormat) error {
	outputPath = strings.TrimSpace(outputPath)
	if outputPath == "" || outputPath == "-" {
		return production.Export(stdout, p, format, time.Now())
	}
	if info, err := os.Stat(outputPath); err == nil && info.IsDir() {
		outputPath = filepath.Join(outputPath, production.ExportFileName(p, format))
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := production.Export(file, p, format, time.Now()); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	fmt.Fprintf(stdout, "Exported %s to %s\n", format, outputPath)
	return nil
}

func writeProductionDetail(out io.Writer, p *production.Production) {
	fmt.Fprintf(out, "%s\n", displayTitle(p.Title))
	fmt.Fprintf(out, "ID: %s\n", p.ID)
	fmt.Fprintf(out, "Step: %s\n", p.Step)
	fmt.Fprintf(out, "Scenes: %d (%s)\n", len(p.Scenes), formatSeconds(p.TotalDuration()))
	if p.Settings.AspectRatio != "" {
		fmt.Fprintf(out, "Aspect ratio: %s\n", p.Settings.AspectRatio)
	}
	if len(p.Scenes) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, renderSceneTable(p.Scenes, shouldColorize(out)))
	fmt.Fprintln(out)
}

func renderSceneTable(scenes []production.Scene, colorize bool) string {
	rows := make([][]string, 0, len(scenes))
	for _, scene := range scenes {
		rows = append(rows, []string{
			strconv.Itoa(scene.Number),
			scene.ID,
			formatSeconds(scene.Duration),
			statusLabel(scene.Status, colorize),
			truncate(scene.Description, 48),
			truncate(scene.Error, 32),
		})
	}
	return renderTable(
		[]string{"#", "ID", "Duration", "Status", "Description", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
	)
}
