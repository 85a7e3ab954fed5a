package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

var resultsCmd = &cobra.Command{
	Use:   "results <workflow-id>",
	Short: "Show the stored output of each step",
	Long: `Show the stored output of each pipeline step.

Without --step a summary line per step is printed. With --step the raw
JSON output of that step is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

var answersCmd = &cobra.Command{
	Use:   "answers <workflow-id>",
	Short: "Show answers, gaps and coverage of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnswers,
}

var proposalCmd = &cobra.Command{
	Use:   "proposal <workflow-id>",
	Short: "Show the compiled response of a completed workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runProposal,
}

func init() {
	resultsCmd.Flags().String("step", "", "Print the raw output of one step")
	answersCmd.Flags().Bool("json", false, "Output as JSON")
	proposalCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(answersCmd)
	rootCmd.AddCommand(proposalCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	if err := requireWorkflows(); err != nil {
		return err
	}

	var only domain.Step
	if stepFlag, _ := cmd.Flags().GetString("step"); stepFlag != "" {
		step, err := domain.ParseStep(stepFlag)
		if err != nil {
			return err
		}
		only = step
	}

	results, err := workflowService.Results(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get results: %w", err)
	}

	if only != "" {
		for i := range results {
			if results[i].StepName != only {
				continue
			}
			var out bytes.Buffer
			if err := json.Indent(&out, results[i].Data, "", "  "); err != nil {
				return fmt.Errorf("failed to format %s output: %w", only, err)
			}
			cmd.Println(out.String())
			return nil
		}
		return fmt.Errorf("workflow %s has no result for step %s: %w", args[0], only, domain.ErrNotFound)
	}

	if len(results) == 0 {
		cmd.Println("No step results stored yet.")
		return nil
	}

	cmd.Printf("%-22s  %10s  %10s  %s\n", "STEP", "CONFIDENCE", "TIME", "SIZE")
	for i := range results {
		r := &results[i]
		confidence := "-"
		if r.Confidence != nil {
			confidence = fmt.Sprintf("%.2f", *r.Confidence)
		}
		cmd.Printf("%-22s  %10s  %10s  %d bytes\n",
			r.StepName, confidence, formatDuration(r.ProcessingTime), len(r.Data))
	}
	return nil
}

func runAnswers(cmd *cobra.Command, args []string) error {
	if err := requireWorkflows(); err != nil {
		return err
	}

	set, err := workflowService.Answers(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get answers: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, set)
	}

	gaps := set.Gaps
	cmd.Printf("Answered %d of %d questions (%.0f%% coverage, method: %s)\n",
		gaps.Answered, gaps.TotalQuestions, gaps.Coverage, set.Method)
	if set.Quality.MeanConfidence > 0 {
		cmd.Printf("Mean confidence: %.2f\n", set.Quality.MeanConfidence)
	}
	cmd.Println()

	if len(gaps.ByCategory) > 0 {
		cmd.Println("Coverage by category:")
		categories := make([]string, 0, len(gaps.ByCategory))
		for c := range gaps.ByCategory {
			categories = append(categories, string(c))
		}
		sort.Strings(categories)
		for _, c := range categories {
			cc := gaps.ByCategory[domain.Category(c)]
			cmd.Printf("  %-14s %d/%d (%.0f%%)\n", c, cc.Answered, cc.Total, cc.Coverage)
		}
		cmd.Println()
	}

	if len(set.Answers) > 0 {
		cmd.Println("Answers:")
		for i := range set.Answers {
			a := &set.Answers[i]
			cmd.Printf("  [%s] %.2f %s\n", a.QuestionID, a.Confidence, truncate(a.Text, 100))
			for _, src := range a.Sources {
				cmd.Printf("      source: %s (%.2f)\n", src.DocumentName, src.Relevance)
			}
		}
		cmd.Println()
	}

	if len(set.Unanswered) > 0 {
		cmd.Println("Unanswered:")
		for _, u := range set.Unanswered {
			cmd.Printf("  [%s] %s\n", u.QuestionID, truncate(u.Question, 100))
			cmd.Printf("      %s\n", u.Reason)
		}
		cmd.Println()
	}

	if len(gaps.CriticalGaps) > 0 {
		cmd.Println("Critical gaps:")
		for _, g := range gaps.CriticalGaps {
			cmd.Printf("  [%s] %s (%s)\n", g.QuestionID, truncate(g.Question, 80), g.Reason)
		}
	}
	return nil
}

func runProposal(cmd *cobra.Command, args []string) error {
	if err := requireWorkflows(); err != nil {
		return err
	}

	p, err := workflowService.Proposal(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get proposal: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, p)
	}

	cmd.Println(p.Title)
	cmd.Println()
	if p.ExecutiveSummary != "" {
		cmd.Println("Executive summary")
		cmd.Printf("  %s\n\n", p.ExecutiveSummary)
	}
	if len(p.RequirementResponses) > 0 {
		cmd.Println("Requirement responses")
		for _, r := range p.RequirementResponses {
			cmd.Printf("  [%s] %s: %s\n", r.RequirementID, r.Compliance, truncate(r.Response, 100))
		}
		cmd.Println()
	}
	bulletList(cmd, "Risks", p.Risks)
	bulletList(cmd, "Assumptions", p.Assumptions)
	bulletList(cmd, "Open questions", p.OpenQuestions)
	bulletList(cmd, "Next steps", p.NextSteps)
	if p.Provenance.Source != domain.SourceParsed {
		cmd.Println("Note: the model reply could not be parsed; sections were recovered heuristically.")
	}
	return nil
}
