package cli

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status <workflow-id>",
	Short: "Show the status of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var retryCmd = &cobra.Command{
	Use:   "retry <workflow-id>",
	Short: "Resume a failed or cancelled workflow",
	Long: `Resume a failed or cancelled workflow from the given step.

Stored results of every earlier step are reused. Valid steps:
  ingest, analyze-requirements, generate-questions, extract-answers,
  compile-response`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <workflow-id>",
	Short: "Cancel a running workflow",
	Long:  `Request cancellation of a workflow. It takes effect between steps.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show workflow counts and average duration",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired workflows",
	Long: `Delete terminal workflows that ended before the retention window.

Running workflows are never removed. Use --older-than to override the
configured window for this sweep.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")

	listCmd.Flags().StringP("status", "s", "", "Only list workflows with this status")
	listCmd.Flags().IntP("limit", "n", domain.DefaultListLimit, "Maximum number of workflows")
	listCmd.Flags().Int("offset", 0, "Skip this many workflows")
	listCmd.Flags().Bool("json", false, "Output as JSON")

	retryCmd.Flags().String("step", string(domain.StepIngest), "Step to resume from")
	retryCmd.Flags().BoolP("wait", "w", false, "Show progress until the workflow finishes")

	statsCmd.Flags().Bool("json", false, "Output as JSON")

	cleanupCmd.Flags().Duration("older-than", 0, "Retention window for this sweep (e.g. 720h)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cleanupCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := requireWorkflows(); err != nil {
		return err
	}

	wf, err := workflowService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get workflow: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, viewOf(wf))
	}

	printWorkflow(cmd, wf)

	docs, err := workflowService.Documents(cmd.Context(), wf.ID)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) > 0 {
		cmd.Println()
		cmd.Printf("Documents (%d):\n", len(docs))
		for i := range docs {
			cmd.Printf("  %-32s %-10s %s\n", truncate(docs[i].Filename, 32), docs[i].Status, docs[i].MIMEType)
		}
	}
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	if err := requireWorkflows(); err != nil {
		return err
	}

	statusFlag, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	asJSON, _ := cmd.Flags().GetBool("json")

	status := domain.WorkflowStatus(statusFlag)
	if status != "" && !status.IsValid() {
		return fmt.Errorf("unknown status %q", statusFlag)
	}

	workflows, err := workflowService.List(cmd.Context(), domain.ListOptions{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	if asJSON {
		views := make([]workflowView, len(workflows))
		for i := range workflows {
			views[i] = viewOf(&workflows[i])
		}
		return printJSON(cmd, views)
	}

	if len(workflows) == 0 {
		cmd.Println("No workflows found.")
		return nil
	}

	cmd.Printf("%-36s  %-10s  %-22s  %4s  %s\n", "ID", "STATUS", "STEP", "PCT", "CREATED")
	for i := range workflows {
		wf := &workflows[i]
		cmd.Printf("%-36s  %-10s  %-22s  %3d%%  %s\n",
			wf.ID, wf.Status, wf.CurrentStep, wf.Progress, wf.CreatedAt.Format(time.DateTime))
	}
	return nil
}

func runRetry(cmd *cobra.Command, args []string) error {
	if err := requireWorkflows(); err != nil {
		return err
	}

	stepFlag, _ := cmd.Flags().GetString("step")
	step, err := domain.ParseStep(stepFlag)
	if err != nil {
		return err
	}

	wf, err := workflowService.Retry(cmd.Context(), args[0], step)
	if err != nil {
		return fmt.Errorf("failed to retry workflow: %w", err)
	}
	cmd.Printf("Workflow %s resumed from %s\n", wf.ID, step)

	if wait, _ := cmd.Flags().GetBool("wait"); !wait {
		return nil
	}
	final, err := watchPlain(cmd, wf.ID, false, true)
	if err != nil {
		return err
	}
	cmd.Println()
	printWorkflow(cmd, final)
	if final.Status == domain.WorkflowFailed {
		return fmt.Errorf("workflow %s failed: %s", final.ID, final.ErrorMessage)
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	if err := requireWorkflows(); err != nil {
		return err
	}

	wf, err := workflowService.Cancel(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to cancel workflow: %w", err)
	}

	if wf.Status == domain.WorkflowCancelled {
		cmd.Printf("Workflow %s cancelled\n", wf.ID)
		return nil
	}
	cmd.Printf("Cancellation requested for workflow %s; it stops after the current step\n", wf.ID)
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	if err := requireWorkflows(); err != nil {
		return err
	}

	stats, err := workflowService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, map[string]any{
			"total":                    stats.Total,
			"by_status":                stats.ByStatus,
			"average_duration_seconds": stats.AverageDuration.Seconds(),
		})
	}

	cmd.Printf("Workflows: %d\n", stats.Total)
	statuses := make([]string, 0, len(stats.ByStatus))
	for s := range stats.ByStatus {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		cmd.Printf("  %-10s %d\n", s, stats.ByStatus[domain.WorkflowStatus(s)])
	}
	if stats.AverageDuration > 0 {
		cmd.Printf("Average duration: %s\n", formatDuration(stats.AverageDuration))
	}
	return nil
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	if retentionService == nil {
		return errors.New("retention service not configured")
	}

	olderThan, _ := cmd.Flags().GetDuration("older-than")

	var (
		n   int
		err error
	)
	if olderThan > 0 {
		n, err = retentionService.SweepOlderThan(cmd.Context(), olderThan)
	} else {
		n, err = retentionService.Sweep(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	cmd.Printf("Removed %d expired workflow(s)\n", n)
	return nil
}
