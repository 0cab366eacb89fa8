package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aelpxy/stash/internal/backup"
	"github.com/aelpxy/stash/internal/docker"
	"github.com/aelpxy/stash/internal/notify"
	"github.com/aelpxy/stash/internal/store"
	"github.com/aelpxy/stash/internal/utils"
	"github.com/aelpxy/stash/pkg/models"
	"github.com/juju/clock"
	"github.com/lucsky/cuid"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a single backup pass",
	Long: "Reconcile tracked instances with the running containers, prune old backups\n" +
		"and back up every container that is due. Meant to be invoked by a scheduler.",
	Run: func(cmd *cobra.Command, args []string) {
		if code := runPass(cmd.Context()); code != 0 {
			os.Exit(code)
		}
	},
}

// unavailableRuntime stands in when no runtime client could be created so
// the pass still prunes ghosts and persists the store.
type unavailableRuntime struct {
	err error
}

func (u unavailableRuntime) ListContainers(ctx context.Context) ([]models.Container, error) {
	return nil, u.err
}

func (u unavailableRuntime) InspectState(ctx context.Context, containerID string) (models.ContainerState, error) {
	return models.ContainerState{}, u.err
}

func (u unavailableRuntime) CopyPath(ctx context.Context, containerID, path string) (io.ReadCloser, error) {
	return nil, u.err
}

func runPass(ctx context.Context) int {
	if ctx == nil {
		ctx = context.Background()
	}

	cm := loadConfig()
	cfg := cm.GetConfig()

	runID := cuid.Slug()
	logger := newLogger(cfg.LogDirPath)
	defer logger.Close()
	log := logger.With().Str("run", runID).Logger()

	if !cm.Found() {
		log.Warn().Str("config", cm.Path()).Msg("config file not found, using defaults")
	}

	repo, err := store.Open(cfg.InstanceInfoFormat, cfg.InstanceInfoDirPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to open instance store")
		fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("[error] failed to open instance store: %v", err)))
		return 1
	}
	defer repo.Close()

	var runtime backup.Runtime
	dockerClient, err := docker.NewClient(docker.Options{
		Host:    cfg.DockerHost,
		TLSCA:   cfg.DockerTLSCA,
		TLSCert: cfg.DockerTLSCert,
		TLSKey:  cfg.DockerTLSKey,
	})
	if err != nil {
		log.Error().Err(err).Msg("container runtime unavailable")
		runtime = unavailableRuntime{err: err}
	} else {
		defer dockerClient.Close()
		log.Debug().Str("runtime", dockerClient.GetRuntimeInfo().GetRuntimeName()).Msg("connected to container runtime")
		runtime = dockerClient
	}

	var notifier backup.Notifier
	if cfg.TelegramEnabled() {
		notifier = notify.NewTelegram(cfg.TelegramBotToken, string(cfg.TelegramChatID))
	}

	pass := backup.NewPass(backup.PassOptions{
		Config:     cfg,
		Repository: repo,
		Runtime:    runtime,
		Notifier:   notifier,
		Clock:      clock.WallClock,
		Logger:     logger.Logger,
		RunID:      runID,
	})

	summary, err := pass.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("pass aborted")
		fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("[error] %v", err)))
		return 1
	}

	printSummary(summary)
	return 0
}

func printSummary(s *backup.Summary) {
	fmt.Println()
	fmt.Println(titleStyle.Render("==> pass " + s.RunID))
	fmt.Printf("  %s %d (%d due)\n", labelStyle.Render("containers:"), s.Containers, s.DueContainers)
	fmt.Printf("  %s %s\n", labelStyle.Render("created:"),
		valueStyle.Render(fmt.Sprintf("%d backups, %s", s.BackupsCreated, utils.FormatBytes(s.CreatedBytes))))
	fmt.Printf("  %s %s\n", labelStyle.Render("pruned:"),
		valueStyle.Render(fmt.Sprintf("%d backups, %s", s.RecordsPruned, utils.FormatBytes(s.PrunedBytes))))
	if s.GhostsRemoved > 0 {
		fmt.Printf("  %s %d\n", labelStyle.Render("ghosts removed:"), s.GhostsRemoved)
	}
	if s.Disk != nil {
		fmt.Printf("  %s %s (%s)\n", labelStyle.Render("disk free:"),
			utils.FormatBytes(int64(s.Disk.Free)), utils.FormatPercent(s.Disk.FreePercent()))
	}

	for _, w := range s.Warnings {
		fmt.Printf("  %s %s\n", warnStyle.Render("[!]"), w)
	}
	for _, f := range s.Failures {
		fmt.Printf("  %s %s: %s\n", errorStyle.Render("[✗]"), f.Subject, dimStyle.Render(f.Err))
	}

	fmt.Println()
	if s.HasProblems() {
		fmt.Println(warnStyle.Render("  [done]") + " pass completed with problems")
	} else {
		fmt.Println(successStyle.Render("  [done]") + " pass completed")
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
