package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhubert/plural-agent/config"
	"github.com/zhubert/plural-agent/logger"
	"github.com/zhubert/plural-agent/manager"
	"github.com/zhubert/plural-agent/process"
)

var skipConfirm bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove log files and kill orphaned agent processes",
	Long: `Removes the engine log and every stream log, and kills agent processes
left behind by earlier runs.

It will prompt for confirmation before proceeding unless the --yes flag is used.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	return runCleanWithReader(os.Stdin)
}

// runCleanWithReader allows injecting a reader for testing
func runCleanWithReader(input io.Reader) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	sm := manager.NewSessionManager(cfg)

	orphans, err := process.FindOrphanedProcesses(sm.Registry(), sm.SessionIDs())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error finding orphaned processes: %v\n", err)
	}

	fmt.Println("This will clean:")
	if len(orphans) > 0 {
		fmt.Printf("  - %d orphaned process(es)\n", len(orphans))
		for _, proc := range orphans {
			fmt.Printf("      PID %d\n", proc.PID)
		}
	}
	fmt.Println("  - All plural-agent log files")

	if !skipConfirm {
		if !confirm(input, "Continue?") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	killed := 0
	if len(orphans) > 0 {
		if killed, err = sm.CleanupOrphans(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error killing orphaned processes: %v\n", err)
		}
	}

	// Close our own log before deleting it.
	logger.Close()
	logsCleared, err := logger.ClearLogs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error clearing logs: %v\n", err)
	}

	fmt.Println()
	fmt.Println("Cleaned:")
	fmt.Printf("  - %d log file(s) removed\n", logsCleared)
	if killed > 0 {
		fmt.Printf("  - %d orphaned process(es) killed\n", killed)
	}
	return nil
}

// confirm prompts the user for y/n confirmation
func confirm(input io.Reader, prompt string) bool {
	reader := bufio.NewReader(input)
	fmt.Printf("%s [y/N]: ", prompt)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
