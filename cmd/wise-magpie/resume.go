package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/4beshinji/wise-magpie/internal/control"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, paths, err := loadConfigAndPaths()
		if err != nil {
			return err
		}
		resp, err := control.NewClient(paths.ControlSock).Resume()
		if err != nil {
			return fmt.Errorf("%w (is the daemon running? try 'wise-magpie status')", err)
		}
		if !resp.Success {
			return fmt.Errorf("resume failed: %s", resp.Error)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Daemon resumed\n", green("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
