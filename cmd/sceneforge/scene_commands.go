package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sceneforge/internal/daemon"
	"sceneforge/internal/editor"
	"sceneforge/internal/orchestrator"
	"sceneforge/internal/production"
)

func newSceneCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scene",
		Short: "Edit and generate individual scenes",
	}

	cmd.AddCommand(newSceneListCommand(ctx))
	cmd.AddCommand(newSceneEditCommand(ctx))
	cmd.AddCommand(newSceneDeleteCommand(ctx))
	cmd.AddCommand(newSceneInsertCommand(ctx))
	cmd.AddCommand(newSceneMoveCommand(ctx))
	cmd.AddCommand(newSceneGenerateCommand(ctx, orchestrator.PhaseImage))
	cmd.AddCommand(newSceneGenerateCommand(ctx, orchestrator.PhaseVideo))

	return cmd
}

// withSession opens the production named by id inside a command stack.
func (c *commandContext) withSession(cmd *cobra.Command, id string, fn func(*daemon.Stack, *editor.Session) error) error {
	return c.withStack(func(stack *daemon.Stack) error {
		session, err := stack.Workspace.Open(cmd.Context(), id)
		if err != nil {
			return err
		}
		return fn(stack, session)
	})
}

func newSceneListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list <production-id>",
		Short: "List the scenes of a production",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, args[0], func(_ *daemon.Stack, session *editor.Session) error {
				scenes := session.Snapshot().Scenes
				if asJSON {
					return writeJSON(cmd, scenes)
				}
				out := cmd.OutOrStdout()
				if len(scenes) == 0 {
					fmt.Fprintln(out, "No scenes")
					return nil
				}
				fmt.Fprint(out, renderSceneTable(scenes, shouldColorize(out)))
				fmt.Fprintln(out)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newSceneEditCommand(ctx *commandContext) *cobra.Command {
	var (
		description  string
		visualPrompt string
		videoPrompt  string
		camera       string
		mood         string
		dialogue     string
		duration     int
	)

	cmd := &cobra.Command{
		Use:   "edit <production-id> <scene>",
		Short: "Edit scene fields (scene is a number or id)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var patch production.ScenePatch
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("visual-prompt") {
				patch.VisualPrompt = &visualPrompt
			}
			if flags.Changed("video-prompt") {
				patch.VideoPrompt = &videoPrompt
			}
			if flags.Changed("camera") {
				patch.CameraMovement = &camera
			}
			if flags.Changed("mood") {
				patch.Mood = &mood
			}
			if flags.Changed("dialogue") {
				patch.Dialogue = &dialogue
			}
			if flags.Changed("duration") {
				patch.Duration = &duration
			}
			if patch.Empty() {
				return errors.New("nothing to change; pass at least one field flag")
			}
			return ctx.withSession(cmd, args[0], func(_ *daemon.Stack, session *editor.Session) error {
				scene, err := resolveScene(session.Snapshot(), args[1])
				if err != nil {
					return err
				}
				if !session.UpdateScene(scene.ID, patch) {
					fmt.Fprintf(cmd.OutOrStdout(), "Scene %d unchanged\n", scene.Number)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated scene %d\n", scene.Number)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&description, "description", "", "Scene description")
	flags.StringVar(&visualPrompt, "visual-prompt", "", "Image prompt")
	flags.StringVar(&videoPrompt, "video-prompt", "", "Motion prompt")
	flags.StringVar(&camera, "camera", "", "Camera movement")
	flags.StringVar(&mood, "mood", "", "Mood")
	flags.StringVar(&dialogue, "dialogue", "", "Dialogue line")
	flags.IntVar(&duration, "duration", production.DefaultSceneDuration, "Target duration in seconds (3-8)")
	return cmd
}

func newSceneDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <production-id> <scene>",
		Short: "Delete a scene and renumber the rest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, args[0], func(_ *daemon.Stack, session *editor.Session) error {
				scene, err := resolveScene(session.Snapshot(), args[1])
				if err != nil {
					return err
				}
				if !session.DeleteScene(scene.ID) {
					return fmt.Errorf("scene %s not deleted", scene.ID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted scene %d\n", scene.Number)
				return nil
			})
		},
	}
}

func newSceneInsertCommand(ctx *commandContext) *cobra.Command {
	var after int
	var description string

	cmd := &cobra.Command{
		Use:   "insert <production-id>",
		Short: "Insert a new scene (appends unless --after is set)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, args[0], func(_ *daemon.Stack, session *editor.Session) error {
				var scene production.Scene
				if cmd.Flags().Changed("after") {
					ok := session.Edit("insert scene", func(p *production.Production) bool {
						inserted, ok := p.InsertSceneAfter(after)
						if !ok {
							return false
						}
						if description != "" {
							p.Scenes[after].Description = description
							inserted.Description = description
						}
						scene = inserted
						return true
					})
					if !ok {
						return fmt.Errorf("cannot insert after scene %d (production has %d scenes)", after, len(session.Snapshot().Scenes))
					}
				} else {
					scene = session.AppendScene(production.NewScene(description))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Inserted scene %d (%s)\n", scene.Number, scene.ID)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&after, "after", 0, "Insert after this scene number (0 inserts at the front)")
	cmd.Flags().StringVar(&description, "description", "", "Scene description")
	return cmd
}

func newSceneMoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "move <production-id> <from> <to>",
		Short: "Move a scene to a new position (1-based numbers)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, args[0], func(_ *daemon.Stack, session *editor.Session) error {
				count := len(session.Snapshot().Scenes)
				from, err := parseSceneNumber(args[1], count)
				if err != nil {
					return err
				}
				to, err := parseSceneNumber(args[2], count)
				if err != nil {
					return err
				}
				if !session.Reorder(from-1, to-1) {
					fmt.Fprintln(cmd.OutOrStdout(), "Order unchanged")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved scene %d to position %d\n", from, to)
				return nil
			})
		},
	}
}

func newSceneGenerateCommand(ctx *commandContext, phase orchestrator.Phase) *cobra.Command {
	use := "image <production-id> <scene>"
	short := "Generate the still image for a scene"
	if phase == orchestrator.PhaseVideo {
		use = "video <production-id> <scene>"
		short = "Animate a scene's image into a video clip"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withGenerationLock(func() error {
				return ctx.withSession(cmd, args[0], func(stack *daemon.Stack, session *editor.Session) error {
					scene, err := resolveScene(session.Snapshot(), args[1])
					if err != nil {
						return err
					}
					runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
					defer stop()

					fmt.Fprintf(cmd.OutOrStdout(), "Generating %s for scene %d...\n", phase, scene.Number)
					result, err := generate(runCtx, stack, session, scene.ID, phase)
					writeGenerationResult(cmd, result)
					return err
				})
			})
		},
	}
}

func generate(ctx context.Context, stack *daemon.Stack, session *editor.Session, sceneID string, phase orchestrator.Phase) (production.Scene, error) {
	if phase == orchestrator.PhaseVideo {
		return stack.Orchestrator.GenerateVideo(ctx, session, sceneID)
	}
	return stack.Orchestrator.GenerateImage(ctx, session, sceneID)
}

func writeGenerationResult(cmd *cobra.Command, scene production.Scene) {
	if scene.ID == "" {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scene %d: %s\n", scene.Number, statusLabel(scene.Status, shouldColorize(out)))
	if scene.GeneratedImageURL != "" {
		fmt.Fprintf(out, "Image: %s\n", scene.GeneratedImageURL)
	}
	if scene.GeneratedVideoURL != "" {
		fmt.Fprintf(out, "Video: %s\n", scene.GeneratedVideoURL)
	}
	if scene.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", scene.Error)
	}
}
