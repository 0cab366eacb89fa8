package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aelpxy/stash/internal/config"
	"github.com/aelpxy/stash/internal/docker"
	"github.com/aelpxy/stash/internal/runtime"
	"github.com/aelpxy/stash/internal/store"
	"github.com/aelpxy/stash/internal/utils"
	"github.com/aelpxy/stash/pkg/models"
	"github.com/spf13/cobra"
)

// below this share of free space on the backup disk doctor warns
const lowDiskPercent = 10.0

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "check configuration, runtime and storage",
	Long:  "Verify that the configuration is valid, the container runtime answers and the instance store loads",
	Run:   runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) {
	fmt.Println(titleStyle.Render("==> checking stash health"))
	fmt.Println()

	cfg, ok := checkConfig()
	allGood := ok

	if ok {
		allGood = checkRuntime(cfg) && allGood
		allGood = checkDirectories(cfg) && allGood
		allGood = checkStore(cfg) && allGood
		checkDisk(cfg)
	}

	fmt.Println()
	if allGood {
		fmt.Println(successStyle.Render("  [done] all checks passed"))
		return
	}
	fmt.Println(errorStyle.Render("  [error] some checks failed"))
	fmt.Println()
	fmt.Println(dimStyle.Render("  fix the issues above before scheduling stash run"))
	os.Exit(1)
}

func checkConfig() (models.Config, bool) {
	fmt.Println(labelStyle.Render("  configuration"))

	cm, err := config.NewConfigManager(configPath)
	if err != nil {
		fmt.Printf("    %s invalid configuration\n", errorStyle.Render("[✗]"))
		fmt.Printf("      %s\n", dimStyle.Render(err.Error()))
		fmt.Println()
		return models.Config{}, false
	}
	cfg := cm.GetConfig()

	if cm.Found() {
		fmt.Printf("    %s %s\n", successStyle.Render("[✓]"), dimStyle.Render(cm.Path()))
	} else {
		fmt.Printf("    %s %s missing, using defaults\n", warnStyle.Render("[!]"), dimStyle.Render(cm.Path()))
		fmt.Printf("      %s\n", dimStyle.Render("run 'stash config init' to create one"))
	}

	fmt.Printf("      %s %d\n", dimStyle.Render("configured containers:"), len(cfg.ContainerPaths))
	if cfg.TelegramEnabled() {
		fmt.Printf("    %s telegram notifications enabled\n", successStyle.Render("[✓]"))
	} else {
		fmt.Printf("    %s telegram notifications disabled\n", dimStyle.Render("[-]"))
	}

	fmt.Println()
	return cfg, true
}

func checkRuntime(cfg models.Config) bool {
	fmt.Println(labelStyle.Render("  runtime"))

	info, err := runtime.DetectRuntime(cfg.DockerHost)
	if err != nil {
		fmt.Printf("    %s runtime not detected\n", errorStyle.Render("[✗]"))
		fmt.Printf("      %s\n", dimStyle.Render(err.Error()))
		fmt.Printf("      %s\n", dimStyle.Render("install docker or podman, or set docker_host"))
		fmt.Println()
		return false
	}
	fmt.Printf("    %s %s detected\n", successStyle.Render("[✓]"), valueStyle.Render(info.GetRuntimeName()))
	fmt.Printf("      %s %s\n", dimStyle.Render("host:"), dimStyle.Render(info.Host))

	dockerClient, err := docker.NewClient(docker.Options{
		Host:    cfg.DockerHost,
		TLSCA:   cfg.DockerTLSCA,
		TLSCert: cfg.DockerTLSCert,
		TLSKey:  cfg.DockerTLSKey,
	})
	if err != nil {
		fmt.Printf("    %s cannot create runtime client\n", errorStyle.Render("[✗]"))
		fmt.Printf("      %s\n", dimStyle.Render(err.Error()))
		fmt.Println()
		return false
	}
	defer dockerClient.Close()

	ctx := context.Background()
	v, err := dockerClient.ServerVersion(ctx)
	if err != nil {
		fmt.Printf("    %s runtime daemon not responding\n", errorStyle.Render("[✗]"))
		fmt.Printf("      %s\n", dimStyle.Render(err.Error()))
		fmt.Println()
		return false
	}
	fmt.Printf("    %s daemon running %s\n", successStyle.Render("[✓]"), dimStyle.Render("(version "+v+")"))

	containers, err := dockerClient.ListContainers(ctx)
	if err != nil {
		fmt.Printf("    %s cannot list containers\n", errorStyle.Render("[✗]"))
		fmt.Printf("      %s\n", dimStyle.Render(err.Error()))
		fmt.Println()
		return false
	}
	fmt.Printf("      %s %d\n", dimStyle.Render("containers:"), len(containers))

	fmt.Println()
	return true
}

func checkDirectories(cfg models.Config) bool {
	fmt.Println(labelStyle.Render("  directories"))

	allGood := true
	dirs := []struct{ label, path string }{
		{"instance info", cfg.InstanceInfoDirPath},
		{"backups", cfg.BackupDirPath},
		{"logs", cfg.LogDirPath},
	}
	for _, d := range dirs {
		if _, err := utils.ValidateDirectory(d.path); err != nil {
			fmt.Printf("    %s %s %s\n", errorStyle.Render("[✗]"), d.label, dimStyle.Render(err.Error()))
			allGood = false
			continue
		}
		fmt.Printf("    %s %s %s\n", successStyle.Render("[✓]"), d.label, dimStyle.Render(d.path))
	}

	fmt.Println()
	return allGood
}

func checkStore(cfg models.Config) bool {
	fmt.Println(labelStyle.Render("  instance store"))

	repo, err := store.Open(cfg.InstanceInfoFormat, cfg.InstanceInfoDirPath)
	if err != nil {
		fmt.Printf("    %s cannot open %s store\n", errorStyle.Render("[✗]"), cfg.InstanceInfoFormat)
		fmt.Printf("      %s\n", dimStyle.Render(err.Error()))
		fmt.Println()
		return false
	}
	defer repo.Close()

	instances, err := repo.Load(context.Background())
	if err != nil {
		fmt.Printf("    %s %s unreadable\n", errorStyle.Render("[✗]"), dimStyle.Render(repo.Location()))
		fmt.Printf("      %s\n", dimStyle.Render(err.Error()))
		fmt.Println()
		return false
	}

	live, deleted := 0, 0
	for i := range instances {
		if instances[i].IsDeleted() {
			deleted++
		} else {
			live++
		}
	}
	fmt.Printf("    %s %s\n", successStyle.Render("[✓]"), dimStyle.Render(repo.Location()))
	fmt.Printf("      %s %d live, %d deleted\n", dimStyle.Render("instances:"), live, deleted)

	fmt.Println()
	return true
}

func checkDisk(cfg models.Config) {
	fmt.Println(labelStyle.Render("  disk"))

	usage, err := utils.GetDiskUsage(cfg.BackupDirPath)
	if err != nil {
		fmt.Printf("    %s %s\n", warnStyle.Render("[!]"), dimStyle.Render(err.Error()))
		fmt.Println()
		return
	}

	status := successStyle.Render("[✓]")
	if usage.FreePercent() < lowDiskPercent {
		status = warnStyle.Render("[!]")
	}
	fmt.Printf("    %s %s free of %s (%s)\n", status,
		utils.FormatBytes(int64(usage.Free)), utils.FormatBytes(int64(usage.Total)),
		utils.FormatPercent(usage.FreePercent()))

	fmt.Println()
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
