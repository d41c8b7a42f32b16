package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/4beshinji/wise-magpie/internal/events"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Watch the daemon's activity feed in real time",
	Long: `Display recent gate, dispatch, and accounting events and optionally follow
live updates as the daemon ticks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		taskID, _ := cmd.Flags().GetInt64("task")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := context.Background()
		_, paths, err := loadConfigAndPaths()
		if err != nil {
			return err
		}
		store, err := openStore(paths)
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.GetEvents(ctx, events.Filter{TaskID: taskID, Limit: limit})
		if err != nil {
			return fmt.Errorf("fetch events: %w", err)
		}
		if len(list) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s No events found\n\n", yellow("✨"))
		}
		for i := len(list) - 1; i >= 0; i-- {
			displayEvent(list[i])
		}

		if !follow {
			return nil
		}

		var lastTimestamp time.Time
		if len(list) > 0 {
			lastTimestamp = list[0].Timestamp
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s Following live updates (Ctrl+C to stop)...\n\n", cyan("👁"))

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-sigCh:
				fmt.Println("\nStopped following")
				return nil
			case <-ticker.C:
				newEvents, err := store.GetEvents(ctx, events.Filter{TaskID: taskID, AfterTime: lastTimestamp, Limit: 100})
				if err != nil {
					fmt.Fprintf(os.Stderr, "\nerror fetching new events: %v\n", err)
					continue
				}
				for i := len(newEvents) - 1; i >= 0; i-- {
					displayEvent(newEvents[i])
					if newEvents[i].Timestamp.After(lastTimestamp) {
						lastTimestamp = newEvents[i].Timestamp
					}
				}
			}
		}
	},
}

func displayEvent(e *events.Event) {
	var marker func(a ...interface{}) string
	switch e.Severity {
	case events.SeverityCritical, events.SeverityError:
		marker = color.New(color.FgRed).SprintFunc()
	case events.SeverityWarning:
		marker = color.New(color.FgYellow).SprintFunc()
	default:
		marker = color.New(color.FgGreen).SprintFunc()
	}

	ts := e.Timestamp.Format("15:04:05")
	if e.TaskID != 0 {
		fmt.Printf("[%s] %s %-22s wm-%d  %s\n", ts, marker("●"), e.Type, e.TaskID, e.Message)
	} else {
		fmt.Printf("[%s] %s %-22s %s\n", ts, marker("●"), e.Type, e.Message)
	}
}

func init() {
	tailCmd.Flags().BoolP("follow", "f", false, "follow mode - watch for live updates (Ctrl+C to stop)")
	tailCmd.Flags().Int64("task", 0, "filter events by task id")
	tailCmd.Flags().IntP("limit", "n", 20, "number of recent events to show initially")
	rootCmd.AddCommand(tailCmd)
}
