package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zhubert/plural-agent/manager"
)

var diffProject string

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Summarize uncommitted changes in a project",
	Long: `Prints the change report for the project's working tree against HEAD, the
same summary shown after each turn.`,
	Args: cobra.NoArgs,
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().StringVarP(&diffProject, "project", "p", ".", "Project directory to report on")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	cfg, project, err := loadProjectConfig(diffProject, "", "")
	if err != nil {
		return err
	}
	sm := manager.NewSessionManager(cfg)
	return sm.Report(cmd.Context(), project).Render(cmd.OutOrStdout())
}
