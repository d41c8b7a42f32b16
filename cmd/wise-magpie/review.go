package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/4beshinji/wise-magpie/internal/types"
	"github.com/4beshinji/wise-magpie/internal/vcs"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review, approve, or reject completed tasks awaiting a merge decision",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks awaiting review",
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

		list, err := store.ListTasks(ctx, types.TaskFilter{Status: types.StatusAwaitingReview})
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		if len(list) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Println(gray("Nothing awaiting review"))
			return nil
		}
		for _, t := range list {
			fmt.Printf("%-8s %-10s %-20s %s\n", t.DisplayID(), t.ModelUsed, t.BranchName, t.Title)
		}
		return nil
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show the full result summary for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := fetchTask(args[0])
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s %s\n\n", cyan("==="), task.Title)
		fmt.Printf("Status:      %s\n", task.Status)
		fmt.Printf("Source:      %s (%s)\n", task.Source, task.SourceRef)
		fmt.Printf("Model used:  %s\n", task.ModelUsed)
		fmt.Printf("Branch:      %s\n", task.BranchName)
		fmt.Printf("Cost:        $%.2f (%d tokens)\n", task.ActualCostUSD, task.ActualTokens)
		if task.RetryCount > 0 {
			fmt.Printf("Retries:     %d\n", task.RetryCount)
		}
		fmt.Printf("\n%s\n\n", task.ResultSummary)
		return nil
	},
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <task-id>",
	Short: "Merge a task's branch into the repository's default branch and mark it merged",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		task, err := fetchTask(args[0])
		if err != nil {
			return err
		}
		if task.Status != types.StatusAwaitingReview {
			return fmt.Errorf("wm-%d is not awaiting review (status: %s)", task.ID, task.Status)
		}
		if task.BranchName == "" {
			return fmt.Errorf("wm-%d has no branch to merge", task.ID)
		}

		_, paths, err := loadConfigAndPaths()
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

		base, err := git.DefaultBranch(ctx)
		if err != nil {
			return fmt.Errorf("resolve default branch: %w", err)
		}
		if err := git.Checkout(ctx, base); err != nil {
			return fmt.Errorf("checkout %s: %w", base, err)
		}
		if err := git.MergeBranch(ctx, task.BranchName); err != nil {
			return fmt.Errorf("merge %s into %s: %w", task.BranchName, base, err)
		}
		if err := git.DeleteBranch(ctx, task.BranchName); err != nil {
			return fmt.Errorf("delete branch %s: %w", task.BranchName, err)
		}

		if err := store.FinishTask(ctx, task.ID, types.StatusMerged, task.ResultSummary, 0, 0, task.ModelUsed); err != nil {
			return fmt.Errorf("mark task merged: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Merged %s into %s and removed %s\n", green("✓"), task.BranchName, base, task.BranchName)
		return nil
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <task-id>",
	Short: "Discard a task's branch and mark it rejected",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		task, err := fetchTask(args[0])
		if err != nil {
			return err
		}
		if task.Status != types.StatusAwaitingReview {
			return fmt.Errorf("wm-%d is not awaiting review (status: %s)", task.ID, task.Status)
		}

		_, paths, err := loadConfigAndPaths()
		if err != nil {
			return err
		}
		store, err := openStore(paths)
		if err != nil {
			return err
		}
		defer store.Close()

		if task.BranchName != "" {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			git, err := vcs.Open(ctx, cwd)
			if err != nil {
				return fmt.Errorf("open repository: %w", err)
			}
			if err := git.DeleteBranch(ctx, task.BranchName); err != nil {
				return fmt.Errorf("delete branch %s: %w", task.BranchName, err)
			}
		}

		if err := store.FinishTask(ctx, task.ID, types.StatusRejected, task.ResultSummary, 0, 0, task.ModelUsed); err != nil {
			return fmt.Errorf("mark task rejected: %w", err)
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("%s Rejected wm-%d and removed %s\n", yellow("✓"), task.ID, task.BranchName)
		return nil
	},
}

// fetchTask resolves a "wm-<n>" or bare numeric id argument to the full task.
func fetchTask(arg string) (*types.Task, error) {
	idStr := arg
	if len(idStr) > 3 && idStr[:3] == "wm-" {
		idStr = idStr[3:]
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid task id %q: %w", arg, err)
	}

	ctx := context.Background()
	_, paths, err := loadConfigAndPaths()
	if err != nil {
		return nil, err
	}
	store, err := openStore(paths)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	task, err := store.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("look up task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("no task wm-%d", id)
	}
	return task, nil
}

func init() {
	reviewCmd.AddCommand(reviewListCmd, reviewShowCmd, reviewApproveCmd, reviewRejectCmd)
	rootCmd.AddCommand(reviewCmd)
}
