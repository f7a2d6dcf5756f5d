package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhubert/plural-agent/cli"
	"github.com/zhubert/plural-agent/config"
	"github.com/zhubert/plural-agent/paths"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check CLI prerequisites and show where files are kept",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v (using defaults)\n", err)
		cfg = config.Defaults()
	}

	prereqs := cli.DefaultPrerequisites(cfg.GetExecutable(), cfg.GetSearchPaths())
	fmt.Fprint(out, cli.FormatCheckResults(cli.CheckAll(prereqs)))

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Agent:")
	fmt.Fprintf(out, "  executable: %s\n", cfg.GetExecutable())
	fmt.Fprintf(out, "  model:      %s\n", orNone(cfg.GetModel()))
	fmt.Fprintf(out, "  effort:     %s\n", orNone(cfg.GetEffort()))

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Paths:")
	if p, err := paths.ConfigFilePath(); err == nil {
		fmt.Fprintf(out, "  config: %s\n", p)
	}
	if p, err := paths.LogsDir(); err == nil {
		fmt.Fprintf(out, "  logs:   %s\n", p)
	}

	return cli.ValidateRequired(prereqs)
}

func orNone(s string) string {
	if s == "" {
		return "(agent default)"
	}
	return s
}
