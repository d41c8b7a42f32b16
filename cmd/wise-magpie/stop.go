package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running wise-magpie daemon",
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

		process, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("find process %d: %w", pid, err)
		}
		if err := process.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("send SIGTERM to pid %d: %w", pid, err)
		}

		for i := 0; i < 30; i++ {
			time.Sleep(time.Second)
			if err := process.Signal(syscall.Signal(0)); err != nil {
				break
			}
		}
		if err := process.Signal(syscall.Signal(0)); err == nil {
			_ = process.Signal(syscall.SIGKILL)
		}
		_ = os.Remove(pidFile)

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Stopped wise-magpie (pid %d)\n", green("✓"), pid)
		return nil
	},
}

// isRunning checks pidFile and verifies the named process is alive,
// cleaning up a stale file left by a crashed daemon. The flock held by
// the running daemon is the authoritative singleton check; this is only
// for the `stop`/`status` CLI's own liveness report.
func isRunning(pidFile string) (bool, int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return false, 0, nil
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0, nil
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		_ = os.Remove(pidFile)
		return false, 0, nil
	}
	return true, pid, nil
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
