package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sceneforge/internal/daemon"
	"sceneforge/internal/editor"
)

func newProduceCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "produce <production-id>",
		Short: "Generate images and videos for every unfinished scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withGenerationLock(func() error {
				return ctx.withSession(cmd, args[0], func(stack *daemon.Stack, session *editor.Session) error {
					runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
					defer stop()

					report, err := stack.Producer.ProduceAll(runCtx, session)
					if asJSON {
						if encodeErr := writeJSON(cmd, report); encodeErr != nil {
							return encodeErr
						}
						return err
					}
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Ready: %d  Failed: %d  Skipped: %d  (%s)\n",
						report.Ready, report.Failed, report.Skipped, report.Duration.Round(time.Second))
					if report.Interrupted {
						fmt.Fprintln(out, "Run interrupted; run produce again to resume")
					}
					scenes := session.Snapshot().Scenes
					if len(scenes) > 0 {
						fmt.Fprint(out, renderSceneTable(scenes, shouldColorize(out)))
						fmt.Fprintln(out)
					}
					return err
				})
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the run report as JSON")
	return cmd
}
