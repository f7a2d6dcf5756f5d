package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	agenterrors "github.com/zhubert/plural-agent/errors"
	"github.com/zhubert/plural-agent/manager"
)

var (
	runProject     string
	runModel       string
	runEffort      string
	runInteractive bool
	runNoReport    bool
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Send a prompt to the agent for a project",
	Long: `Sends a prompt to the Codex agent in the project directory, streams its
activity, prints the response and summarizes the files it changed.

With --interactive each line read from stdin is sent as a turn on the same
thread, so later turns resume the conversation.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if !runInteractive && len(args) == 0 {
			return fmt.Errorf("a prompt is required unless --interactive is set")
		}
		return nil
	},
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runProject, "project", "p", ".", "Project directory the agent works in")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model override for this run")
	runCmd.Flags().StringVar(&runEffort, "effort", "", "Reasoning effort override (minimal, low, medium, high)")
	runCmd.Flags().BoolVarP(&runInteractive, "interactive", "i", false, "Read prompts from stdin, one per line")
	runCmd.Flags().BoolVar(&runNoReport, "no-report", false, "Skip the change report after each turn")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, project, err := loadProjectConfig(runProject, runModel, runEffort)
	if err != nil {
		return err
	}
	if err := requireAgent(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sm := manager.NewSessionManager(cfg)
	defer sm.Stop()

	out := cmd.OutOrStdout()
	if !runInteractive {
		return sendPrompt(ctx, sm, out, project, strings.Join(args, " "))
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if err := sendPrompt(ctx, sm, out, project, prompt); err != nil {
			if agenterrors.Is(err, agenterrors.KindCancelled) {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}
}

func sendPrompt(ctx context.Context, sm *manager.SessionManager, out io.Writer, project, prompt string) error {
	updates, err := sm.Send(ctx, project, prompt)
	if err != nil {
		return err
	}
	return printUpdates(out, updates, !runNoReport)
}

// printUpdates writes a turn's updates to out and returns an error when the
// turn could not run or the agent failed.
func printUpdates(out io.Writer, updates <-chan manager.Update, showReport bool) error {
	var result error
	for u := range updates {
		switch u.Kind {
		case manager.UpdateActivity:
			fmt.Fprintf(out, "  · %s\n", u.Activity)
		case manager.UpdateResponse:
			fmt.Fprintf(out, "\n%s\n", u.Response)
		case manager.UpdateReport:
			if showReport {
				fmt.Fprintln(out)
				if err := u.Report.Render(out); err != nil {
					return err
				}
			}
		case manager.UpdateDone:
			switch {
			case u.Err != nil:
				result = u.Err
			case u.Result != nil && !u.Result.Succeeded():
				result = fmt.Errorf("agent exited with code %d: %s", u.Result.ExitCode, u.Result.FailureMessage)
			}
		}
	}
	return result
}
