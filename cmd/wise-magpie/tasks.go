package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/4beshinji/wise-magpie/internal/config"
	"github.com/4beshinji/wise-magpie/internal/priorities"
	"github.com/4beshinji/wise-magpie/internal/tasks"
	"github.com/4beshinji/wise-magpie/internal/types"
	"github.com/4beshinji/wise-magpie/internal/vcs"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List, add, scan for, and remove queued tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFlag, _ := cmd.Flags().GetString("status")
		sourceFlag, _ := cmd.Flags().GetString("source")
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

		list, err := store.ListTasks(ctx, types.TaskFilter{
			Status: types.Status(statusFlag),
			Source: types.Source(sourceFlag),
			Limit:  limit,
		})
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		if len(list) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Println(gray("No tasks match"))
			return nil
		}
		for _, t := range list {
			fmt.Printf("%-8s [%3d] %-10s %-9s %s\n", t.DisplayID(), t.Priority, t.Source, t.Status, t.Title)
		}
		return nil
	},
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Manually queue a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		modelFlag, _ := cmd.Flags().GetString("model")

		task := &types.Task{
			Title:          args[0],
			Description:    description,
			Source:         types.SourceManual,
			RequestedModel: types.Model(modelFlag),
			Status:         types.StatusPending,
		}
		task.Priority = priorities.Score(task)
		if err := task.Validate(); err != nil {
			return err
		}

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

		if err := store.CreateTask(ctx, task); err != nil {
			return fmt.Errorf("create task: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Queued %s (priority %d): %s\n", green("✓"), task.DisplayID(), task.Priority, task.Title)
		return nil
	},
}

var tasksScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the repository for new tasks (code comments, queue file, markdown, auto-templates)",
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

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		git, err := vcs.Open(ctx, cwd)
		if err != nil {
			return fmt.Errorf("open repository: %w", err)
		}

		aggr := tasks.NewAggregator(store, git, toAutoTaskConfig(cfg))
		result, err := aggr.Scan(ctx)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Discovered %d candidates, queued %d new tasks\n", green("✓"), result.Discovered, result.Created)
		return nil
	},
}

var tasksRemoveCmd = &cobra.Command{
	Use:   "remove <task-id>",
	Short: "Remove a pending task from the queue",
	Long:  `Removes a task from active consideration by marking it rejected. wise-magpie never deletes task history outright.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid task id %q: %w", args[0], err)
		}

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

		task, err := store.GetTask(ctx, id)
		if err != nil {
			return fmt.Errorf("look up task: %w", err)
		}
		if task == nil {
			return fmt.Errorf("no task wm-%d", id)
		}
		if task.Status == types.StatusRunning {
			return fmt.Errorf("cannot remove wm-%d: a task cannot be removed while running", id)
		}

		if err := store.FinishTask(ctx, id, types.StatusRejected, task.ResultSummary, 0, 0, task.ModelUsed); err != nil {
			return fmt.Errorf("remove task: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Removed wm-%d\n", green("✓"), id)
		return nil
	},
}

func toAutoTaskConfig(cfg config.Config) tasks.AutoTaskConfig {
	overrides := make(map[string]tasks.TemplateOverride, len(cfg.AutoTasks.Templates))
	for name, o := range cfg.AutoTasks.Templates {
		overrides[name] = tasks.TemplateOverride{
			Enabled:       o.Enabled,
			IntervalHours: o.IntervalHours,
			MinCommits:    o.MinCommits,
		}
	}
	return tasks.AutoTaskConfig{Enabled: cfg.AutoTasks.Enabled, Overrides: overrides}
}

func init() {
	tasksListCmd.Flags().String("status", "", "filter by status")
	tasksListCmd.Flags().String("source", "", "filter by source")
	tasksListCmd.Flags().Int("limit", 0, "limit the number of results (0 = unlimited)")
	tasksAddCmd.Flags().String("description", "", "task description")
	tasksAddCmd.Flags().String("model", "", "force a model tier (opus, sonnet, haiku); empty selects automatically")

	tasksCmd.AddCommand(tasksListCmd, tasksAddCmd, tasksScanCmd, tasksRemoveCmd)
	rootCmd.AddCommand(tasksCmd)
}
