package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/4beshinji/wise-magpie/internal/control"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the daemon so it stops dispatching new tasks",
	Long: `Pause tells the running daemon to stop claiming new tasks at the next tick.
A task already in flight runs to completion; nothing is interrupted mid-run.
Resume with 'wise-magpie resume'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")

		_, paths, err := loadConfigAndPaths()
		if err != nil {
			return err
		}
		resp, err := control.NewClient(paths.ControlSock).Pause(reason)
		if err != nil {
			return fmt.Errorf("%w (is the daemon running? try 'wise-magpie status')", err)
		}
		if !resp.Success {
			return fmt.Errorf("pause failed: %s", resp.Error)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Daemon paused\n", green("✓"))
		return nil
	},
}

func init() {
	pauseCmd.Flags().String("reason", "", "note recorded alongside the pause")
	rootCmd.AddCommand(pauseCmd)
}
