package executor

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/4beshinji/wise-magpie/internal/types"
)

// promptTemplate renders the task into the Assistant CLI's prompt body.
// Tasks have no parent/child relationships, so the prompt carries only
// the task's own title and description.
const promptTemplate = `# TASK {{.Task.DisplayID}}

{{.Task.Title}}

{{if .Task.Description -}}
## Description
{{.Task.Description}}

{{end -}}
Work only within this repository checkout. Commit your changes as you go.
When finished, leave the working tree in a state ready for human review.
`

var tmpl = template.Must(template.New("prompt").Parse(promptTemplate))

type promptContext struct {
	Task *types.Task
}

// BuildPrompt renders task into the Assistant CLI prompt body.
func BuildPrompt(task *types.Task) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, promptContext{Task: task}); err != nil {
		return "", fmt.Errorf("executor: build prompt: %w", err)
	}
	return buf.String(), nil
}
