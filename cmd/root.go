package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhubert/plural-agent/logger"
)

var (
	debugMode             bool
	quietMode             bool
	version, commit, date string
)

// SetVersionInfo sets version information from ldflags
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "plural-agent",
	Short: "Drive Codex CLI sessions per project and report what they changed",
	Long: `plural-agent runs the Codex CLI in non-interactive JSON mode, keeps one
resumable thread per project, retries once on a fresh thread when a saved
thread has gone stale, and summarizes the file changes each turn produced.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", true, "Enable debug logging (on by default)")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "Only log warnings and errors")
}

func initConfig() {
	if quietMode {
		logger.SetQuiet()
	} else {
		logger.SetDebug(debugMode)
	}
}

// Execute runs the root command
func Execute() error {
	defer logger.Close()
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	return rootCmd.Execute()
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("plural-agent %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("plural-agent %s\n", version)
}
