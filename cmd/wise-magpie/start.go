package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/4beshinji/wise-magpie/internal/activity"
	"github.com/4beshinji/wise-magpie/internal/ai"
	"github.com/4beshinji/wise-magpie/internal/budget"
	"github.com/4beshinji/wise-magpie/internal/config"
	"github.com/4beshinji/wise-magpie/internal/executor"
	"github.com/4beshinji/wise-magpie/internal/quota"
	"github.com/4beshinji/wise-magpie/internal/scheduler"
	"github.com/4beshinji/wise-magpie/internal/tasks"
	"github.com/4beshinji/wise-magpie/internal/types"
	"github.com/4beshinji/wise-magpie/internal/vcs"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the wise-magpie daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		foreground, _ := cmd.Flags().GetBool("foreground")
		if !foreground {
			return relaunchInBackground()
		}
		return runForeground()
	},
}

func init() {
	startCmd.Flags().Bool("foreground", false, "run the daemon in the foreground instead of detaching")
	rootCmd.AddCommand(startCmd)
}

// relaunchInBackground re-execs the current binary with --foreground,
// detached from the controlling terminal with stdout/stderr redirected
// to the log file, then returns immediately. Go has no fork(); this is
// the conventional daemonization shape for a pure-Go CLI rather than a
// true double-fork.
func relaunchInBackground() error {
	dir, err := resolveConfigDir()
	if err != nil {
		return err
	}
	paths := config.ResolvePaths(dir)
	if _, err := os.Stat(paths.ConfigFile); os.IsNotExist(err) {
		return fmt.Errorf("no config at %s (run 'wise-magpie config init' first)", paths.ConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(paths.LogFile), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(paths.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}

	cmd := exec.Command(self, "start", "--foreground", "--config-dir", dir)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	setDetached(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s wise-magpie daemon started (pid %d), logging to %s\n", green("✓"), cmd.Process.Pid, paths.LogFile)
	return cmd.Process.Release()
}

func runForeground() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, paths, err := loadConfigAndPaths()
	if err != nil {
		return err
	}

	store, err := openStore(paths)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	monitor := activity.NewMonitor(store, nil)

	budgetAcct, err := budget.New(ctx, budget.Config{
		MaxTaskUSD:     cfg.Budget.MaxTaskUSD,
		DailyCapUSD:    cfg.Budget.MaxDailyUSD,
		WarningPercent: 0.80,
	}, store, store)
	if err != nil {
		return fmt.Errorf("init budget accountant: %w", err)
	}

	quotaAcct, err := quota.New(ctx, toQuotaConfig(cfg), store, store)
	if err != nil {
		return fmt.Errorf("init quota accountant: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	git, err := vcs.Open(ctx, cwd)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	aggr := tasks.NewAggregator(store, git, toAutoTaskConfig(cfg))

	execCfg := executor.DefaultConfig()
	execCfg.ExtraFlags = cfg.Assistant.ExtraFlags
	execCfg.Summarizer = ai.NewSummarizerFromEnv("claude-3-5-haiku-latest")

	exc, err := executor.New(execCfg)
	if err != nil {
		return fmt.Errorf("init executor: %w", err)
	}

	sched := scheduler.New(scheduler.Config{
		RepoRoot:             git.RepoRoot,
		WorkDir:              cwd,
		LockPath:             filepath.Join(paths.Dir, "wise-magpie.lock"),
		ControlSockPath:      paths.ControlSock,
		PollInterval:         time.Duration(cfg.Daemon.PollIntervalSeconds) * time.Second,
		IdleThresholdMinutes: cfg.Activity.IdleThresholdMinutes,
		ReturnBufferMinutes:  cfg.Activity.ReturnBufferMinutes,
		AutoSyncInterval:     time.Duration(cfg.Daemon.AutoSyncIntervalMinutes) * time.Minute,
		ScanInterval:         time.Duration(cfg.Daemon.ScanIntervalMinutes) * time.Minute,
		ForcedModel:          forcedModel(cfg),
	}, scheduler.Deps{
		Store:      store,
		Monitor:    monitor,
		Quota:      quotaAcct,
		Budget:     budgetAcct,
		Aggregator: aggr,
		Executor:   exc,
		Git:        git,
	})

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s wise-magpie daemon running in foreground (pid %d)\n", green("✓"), os.Getpid())
	return sched.Start(ctx)
}

func forcedModel(cfg config.Config) types.Model {
	if cfg.Assistant.AutoSelectModel {
		return types.ModelAuto
	}
	m := types.Model(cfg.Assistant.Model)
	if !m.IsValid() {
		return types.ModelAuto
	}
	return m
}
