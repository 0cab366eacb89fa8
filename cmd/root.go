package cmd

import (
	"fmt"
	"os"

	"github.com/aelpxy/stash/internal/config"
	"github.com/aelpxy/stash/internal/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var (
	configPath string
	verbose    bool
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("213"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Bold(true)
)

var rootCmd = &cobra.Command{
	Use:   "stash",
	Short: "activity-gated backups of container paths",
	Long: titleStyle.Render("stash") + "\n" + subtitleStyle.Render("container path backups with retention") + "\n\n" +
		"Run 'stash run' from a scheduler. Each run backs up the configured paths of\n" +
		"containers that were active since their last backup, then prunes old backups.",
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
	rootCmd.Version = fmt.Sprintf("%s (built: %s, commit: %s)", version, buildTime, gitCommit)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fail("%v", err)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("[error] "+fmt.Sprintf(format, args...)))
	os.Exit(1)
}

func loadConfig() *config.ConfigManager {
	cm, err := config.NewConfigManager(configPath)
	if err != nil {
		fail("failed to load config: %v", err)
	}
	return cm
}

func newLogger(dir string) *logging.Logger {
	return logging.New(logging.Options{Dir: dir, Verbose: verbose})
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "path to the configuration file (.toml or .yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
