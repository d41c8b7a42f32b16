package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/4beshinji/wise-magpie/internal/config"
	"github.com/4beshinji/wise-magpie/internal/quota"
	"github.com/4beshinji/wise-magpie/internal/types"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect and correct message quota accounting",
}

func toQuotaConfig(cfg config.Config) quota.Config {
	qcfg := quota.DefaultConfig()
	if cfg.Quota.WindowHours > 0 {
		qcfg.WindowHours = cfg.Quota.WindowHours
	}
	qcfg.SafetyMargin = cfg.Quota.SafetyMargin
	if len(cfg.Quota.Limits) > 0 {
		limits := make(map[types.Model]int, len(cfg.Quota.Limits))
		for name, n := range cfg.Quota.Limits {
			limits[types.Model(name)] = n
		}
		qcfg.Limits = limits
	}
	return qcfg
}

var quotaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show remaining quota for each model tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg, paths, err := loadConfigAndPaths()
		if err != nil {
			return err
		}
		store, err := openStore(paths)
		if err != nil {
			return err
		}
		defer store.Close()

		acct, err := quota.New(ctx, toQuotaConfig(cfg), store, store)
		if err != nil {
			return fmt.Errorf("load quota accountant: %w", err)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Quota Status ==="))
		for _, m := range []types.Model{types.ModelOpus, types.ModelSonnet, types.ModelHaiku} {
			fmt.Printf("  %-8s %d remaining (%.0f%%)\n", m, acct.Remaining(m), acct.RemainingFraction(m)*100)
		}
		fmt.Printf("\n  Window resets in %s\n\n", acct.WindowRemaining(time.Now()).Round(time.Minute))
		return nil
	},
}

var quotaSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync quota from an upstream usage-reporting source",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("no upstream quota source is configured; no confidently known public usage-reporting endpoint exists to poll — use 'wise-magpie quota correct' instead")
	},
}

var quotaCorrectCmd = &cobra.Command{
	Use:   "correct <model> <remaining-messages>",
	Short: "Correct the remaining message count for a model tier",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := types.Model(args[0])
		if !m.IsValid() || m == types.ModelAuto {
			return fmt.Errorf("invalid model %q (expected opus, sonnet, or haiku)", args[0])
		}
		remaining, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid remaining-messages %q: %w", args[1], err)
		}

		ctx := context.Background()
		cfg, paths, err := loadConfigAndPaths()
		if err != nil {
			return err
		}
		store, err := openStore(paths)
		if err != nil {
			return err
		}
		defer store.Close()

		acct, err := quota.New(ctx, toQuotaConfig(cfg), store, store)
		if err != nil {
			return fmt.Errorf("load quota accountant: %w", err)
		}
		if err := acct.Correct(ctx, m, remaining); err != nil {
			return fmt.Errorf("apply correction: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Corrected %s: %d messages remaining\n", green("✓"), m, remaining)
		return nil
	},
}

var quotaHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent quota snapshots",
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

		snapshots, err := store.ListRecentQuotaSnapshots(ctx, 20)
		if err != nil {
			return fmt.Errorf("list snapshots: %w", err)
		}
		if len(snapshots) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Println(gray("No quota snapshots recorded yet"))
			return nil
		}
		for _, s := range snapshots {
			fmt.Printf("%s  opus=%d sonnet=%d haiku=%d\n",
				s.Timestamp.Format("2006-01-02 15:04:05"),
				s.Consumed[types.ModelOpus], s.Consumed[types.ModelSonnet], s.Consumed[types.ModelHaiku])
		}
		return nil
	},
}

func init() {
	quotaCmd.AddCommand(quotaShowCmd, quotaSyncCmd, quotaCorrectCmd, quotaHistoryCmd)
	rootCmd.AddCommand(quotaCmd)
}
