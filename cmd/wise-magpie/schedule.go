package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/4beshinji/wise-magpie/internal/activity"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect the learned activity pattern and idle forecast",
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the daemon's recorded PID, host, start time, and last tick",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		meta, err := store.GetDaemonMeta(ctx)
		if err != nil {
			return fmt.Errorf("load daemon metadata: %w", err)
		}
		if meta == nil {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Println(gray("No daemon has run yet"))
			return nil
		}
		fmt.Printf("PID:         %d\n", meta.PID)
		fmt.Printf("Host:        %s\n", meta.Hostname)
		fmt.Printf("Started:     %s\n", meta.StartedAt.Format(time.RFC3339))
		fmt.Printf("Last tick:   %s (%s ago)\n", meta.LastTickAt.Format(time.RFC3339), time.Since(meta.LastTickAt).Round(time.Second))
		return nil
	},
}

var schedulePredictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Forecast when the operator is likely to return and the longest idle window ahead",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		pattern, err := activity.LearnPattern(ctx, store, time.Now().Add(-14*24*time.Hour))
		if err != nil {
			return fmt.Errorf("learn activity pattern: %w", err)
		}
		predictor := &activity.Predictor{Pattern: pattern}
		now := time.Now()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Idle Forecast ==="))
		fmt.Printf("Learned from %d samples (computed %s)\n\n", pattern.SampleCount, pattern.ComputedAt.Format(time.RFC3339))

		if minutes, ok := predictor.MinutesUntilLikelyReturn(now); ok {
			fmt.Printf("Likely return in:       %d minutes\n", minutes)
		} else {
			fmt.Printf("Likely return in:       no return predicted within 8 hours\n")
		}
		fmt.Printf("Longest idle (8h):      %d minutes\n", predictor.LongestPredictedIdleWithin(now, 8))
		fmt.Println()
		return nil
	},
}

func init() {
	scheduleCmd.AddCommand(scheduleShowCmd, schedulePredictCmd)
	rootCmd.AddCommand(scheduleCmd)
}
