package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/4beshinji/wise-magpie/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running and its last tick state",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, paths, err := loadConfigAndPaths()
		if err != nil {
			return err
		}

		pidFile := filepath.Join(paths.Dir, "wise-magpie.lock.pid")
		running, pid, err := isRunning(pidFile)
		if err != nil {
			return err
		}
		if !running {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Println(gray("wise-magpie is not running"))
			return nil
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s wise-magpie is running (pid %d)\n", green("●"), pid)

		resp, err := control.NewClient(paths.ControlSock).Status()
		if err != nil {
			fmt.Printf("  (could not reach control socket: %v)\n", err)
			return nil
		}
		if !resp.Success {
			fmt.Printf("  daemon reported an error: %s\n", resp.Error)
			return nil
		}

		if paused, _ := resp.Data["paused"].(bool); paused {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("  %s paused\n", yellow("⏸"))
		} else {
			fmt.Println("  active")
		}
		if taskID, ok := resp.Data["running_task_id"]; ok {
			fmt.Printf("  currently running task: wm-%v\n", taskID)
		}
		if lastTick, ok := resp.Data["last_tick_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, lastTick); err == nil {
				fmt.Printf("  last tick: %s ago\n", time.Since(t).Round(time.Second))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
