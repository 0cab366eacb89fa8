package cmd

import (
	"context"
	"fmt"

	"github.com/aelpxy/stash/internal/store"
	"github.com/aelpxy/stash/internal/utils"
	"github.com/aelpxy/stash/pkg/models"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var showDeleted bool

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "list tracked instances",
	Long:  "Display every tracked container path with its backup history",
	Run:   runInstances,
}

func runInstances(cmd *cobra.Command, args []string) {
	cfg := loadConfig().GetConfig()

	repo, err := store.Open(cfg.InstanceInfoFormat, cfg.InstanceInfoDirPath)
	if err != nil {
		fail("failed to open instance store: %v", err)
	}
	defer repo.Close()

	instances, err := repo.Load(context.Background())
	if err != nil {
		fail("failed to load instance store: %v", err)
	}

	rows := [][]string{}
	for _, inst := range instances {
		if inst.IsDeleted() && !showDeleted {
			continue
		}
		rows = append(rows, instanceRow(inst))
	}

	if len(rows) == 0 {
		fmt.Println(dimStyle.Render("no instances tracked"))
		fmt.Println()
		fmt.Println(dimStyle.Render("instances are created by: stash run"))
		return
	}

	fmt.Println(titleStyle.Render("==> instances"))
	fmt.Println(dimStyle.Render("  " + repo.Location()))
	fmt.Println()

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers("container", "id", "path", "backups", "size", "last backup", "deleted").
		Rows(rows...)

	fmt.Println(t)
	fmt.Println()
}

func instanceRow(inst models.Instance) []string {
	lastBackup := "never"
	if inst.LastBackupAt != nil {
		lastBackup = inst.LastBackupAt.Local().Format("2006-01-02 15:04")
	}
	deleted := "-"
	if inst.DeletedAt != nil {
		deleted = inst.DeletedAt.Local().Format(models.DateLayout)
	}

	return []string{
		utils.TruncateString(inst.ContainerName, 24),
		models.ShortID(inst.ContainerID),
		utils.TruncateString(inst.Path, 32),
		fmt.Sprintf("%d", len(inst.Backups)),
		utils.FormatBytes(inst.TotalSize()),
		lastBackup,
		deleted,
	}
}

func init() {
	instancesCmd.Flags().BoolVarP(&showDeleted, "all", "a", false, "include deleted instances")
	rootCmd.AddCommand(instancesCmd)
}
