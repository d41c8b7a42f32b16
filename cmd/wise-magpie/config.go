package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/4beshinji/wise-magpie/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage wise-magpie's configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config.toml",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveConfigDir()
		if err != nil {
			return err
		}
		paths := config.ResolvePaths(dir)
		if err := config.Init(paths.ConfigFile); err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Wrote default config to %s\n", green("✓"), paths.ConfigFile)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved config.toml contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, paths, err := loadConfigAndPaths()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(paths.ConfigFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", paths.ConfigFile, err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config.toml in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveConfigDir()
		if err != nil {
			return err
		}
		paths := config.ResolvePaths(dir)
		if _, err := os.Stat(paths.ConfigFile); os.IsNotExist(err) {
			if err := config.Init(paths.ConfigFile); err != nil {
				return err
			}
		}

		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		c := exec.Command(editor, paths.ConfigFile)
		c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
		return c.Run()
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd, configEditCmd)
	rootCmd.AddCommand(configCmd)
}
