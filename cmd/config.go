package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/aelpxy/stash/internal/config"
	"github.com/aelpxy/stash/internal/utils"
	"github.com/aelpxy/stash/pkg/models"
	"github.com/spf13/cobra"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "manage stash configuration",
	Long:  "show the effective configuration or write a starter config file",
	Run:   runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "display effective configuration",
	Long:  "print the configuration after defaults and path resolution, with secrets masked",
	Run:   runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "write a starter config file",
	Long:  "write a config file with every option at its default value",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(configPath); err == nil && !forceInit {
			fail("%s already exists, use --force to overwrite", configPath)
		}

		data, err := encodeConfig(config.Defaults("."))
		if err != nil {
			fail("failed to encode config: %v", err)
		}

		if err := utils.AtomicWriteFile(configPath, data, 0600); err != nil {
			fail("failed to write config: %v", err)
		}

		fmt.Println(successStyle.Render("  [done]") + " wrote " + valueStyle.Render(configPath))
		fmt.Println()
		fmt.Println("  " + dimStyle.Render("add container paths, then schedule:"))
		fmt.Println("  " + dimStyle.Render("     stash run --config "+configPath))
	},
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cm := loadConfig()
	cfg := cm.GetConfig()

	if cfg.TelegramBotToken != "" {
		cfg.TelegramBotToken = utils.MaskSensitive(cfg.TelegramBotToken, 4)
	}

	data, err := encodeConfig(cfg)
	if err != nil {
		fail("failed to encode config: %v", err)
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("==> stash configuration"))
	if cm.Found() {
		fmt.Println(dimStyle.Render("  " + cm.Path()))
	} else {
		fmt.Println(dimStyle.Render("  " + cm.Path() + " not found, showing defaults"))
	}
	fmt.Println()
	fmt.Println(string(data))
}

func encodeConfig(cfg models.Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func init() {
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing config file")
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
