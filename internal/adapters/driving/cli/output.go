package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// workflowView is the JSON shape of a workflow.
type workflowView struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	CurrentStep    string         `json:"current_step,omitempty"`
	Progress       int            `json:"progress"`
	ProjectContext map[string]any `json:"project_context,omitempty"`
	StartTime      *time.Time     `json:"start_time,omitempty"`
	EndTime        *time.Time     `json:"end_time,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func viewOf(wf *domain.Workflow) workflowView {
	return workflowView{
		ID:             wf.ID,
		Status:         string(wf.Status),
		CurrentStep:    string(wf.CurrentStep),
		Progress:       wf.Progress,
		ProjectContext: wf.ProjectContext,
		StartTime:      wf.StartTime,
		EndTime:        wf.EndTime,
		ErrorMessage:   wf.ErrorMessage,
		CreatedAt:      wf.CreatedAt,
		UpdatedAt:      wf.UpdatedAt,
	}
}

func printWorkflow(cmd *cobra.Command, wf *domain.Workflow) {
	cmd.Printf("Workflow: %s\n", wf.ID)
	cmd.Printf("  Status:   %s\n", wf.Status)
	if wf.CurrentStep != "" {
		cmd.Printf("  Step:     %s\n", wf.CurrentStep)
	}
	cmd.Printf("  Progress: %d%%\n", wf.Progress)
	cmd.Printf("  Created:  %s\n", wf.CreatedAt.Format(time.RFC3339))
	if d := wf.Duration(); d > 0 {
		cmd.Printf("  Duration: %s\n", formatDuration(d))
	}
	if wf.ErrorMessage != "" {
		cmd.Printf("  Error:    %s\n", wf.ErrorMessage)
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func bulletList(cmd *cobra.Command, title string, items []string) {
	if len(items) == 0 {
		return
	}
	cmd.Println(title)
	for _, item := range items {
		cmd.Printf("  - %s\n", item)
	}
	cmd.Println()
}
