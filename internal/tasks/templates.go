package tasks

import "github.com/4beshinji/wise-magpie/internal/types"

// Template is one row of the built-in auto-template table.
type Template struct {
	TaskType         string
	Title            string
	Description      string
	IntervalHours    int
	MinCommits       int
	NeedsNewCommits  bool
	NeedsCodeChanges bool
	Difficulty       types.Difficulty
	Enabled          bool
}

// BuiltinTemplates is the fixed auto-template table.
func BuiltinTemplates() []Template {
	return []Template{
		{
			TaskType: "run_tests", Title: "Run the test suite and fix any failures",
			Description: "Run the project's test suite. If any tests fail, investigate and fix them.",
			IntervalHours: 24, NeedsNewCommits: true, Difficulty: types.DifficultySimple, Enabled: true,
		},
		{
			TaskType: "update_docs", Title: "Update documentation to match recent changes",
			Description: "Review recent commits and update README/docs that have fallen out of date.",
			IntervalHours: 48, NeedsCodeChanges: true, Difficulty: types.DifficultySimple, Enabled: true,
		},
		{
			TaskType: "lint_check", Title: "Run lint checks and fix violations",
			Description: "Run the project's linter and fix any violations it reports.",
			IntervalHours: 12, NeedsCodeChanges: true, Difficulty: types.DifficultySimple, Enabled: true,
		},
		{
			TaskType: "clean_commits", Title: "Clean up recent commit history",
			Description: "Review the last batch of commits for squashable or poorly-described work.",
			MinCommits: 10, Difficulty: types.DifficultyMedium, Enabled: true,
		},
		{
			TaskType: "dependency_check", Title: "Check dependencies for updates and vulnerabilities",
			Description: "Audit project dependencies for available updates and known vulnerabilities.",
			IntervalHours: 168, Difficulty: types.DifficultyMedium, Enabled: true,
		},
		{
			TaskType: "security_audit", Title: "Perform a security audit of recent changes",
			Description: "Review recently changed code for common security issues.",
			IntervalHours: 168, NeedsCodeChanges: true, Difficulty: types.DifficultyComplex, Enabled: true,
		},
		{
			TaskType: "test_coverage", Title: "Improve test coverage for recently changed code",
			Description: "Identify undertested recently changed code paths and add tests.",
			IntervalHours: 48, NeedsCodeChanges: true, Difficulty: types.DifficultyMedium, Enabled: true,
		},
		{
			TaskType: "dead_code_detection", Title: "Find and remove dead code",
			Description: "Scan for unreachable or unused code introduced by recent changes and remove it.",
			IntervalHours: 168, NeedsCodeChanges: true, Difficulty: types.DifficultySimple, Enabled: true,
		},
		{
			TaskType: "changelog_generation", Title: "Update the changelog",
			Description: "Summarize recent commits into a changelog entry.",
			MinCommits: 5, Difficulty: types.DifficultySimple, Enabled: true,
		},
		{
			TaskType: "deprecation_cleanup", Title: "Remove deprecated code paths",
			Description: "Find code marked deprecated long enough ago to be safely removed.",
			IntervalHours: 336, NeedsCodeChanges: true, Difficulty: types.DifficultyComplex, Enabled: true,
		},
		{
			TaskType: "type_coverage", Title: "Tighten type coverage for recently changed code",
			Description: "Review recently changed code for loosely-typed spots and tighten them.",
			IntervalHours: 168, NeedsCodeChanges: true, Difficulty: types.DifficultyMedium, Enabled: true,
		},
	}
}
