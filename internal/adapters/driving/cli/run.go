package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/autorfp/internal/adapters/driving/tui"
	"github.com/custodia-labs/autorfp/internal/core/domain"
)

var runCmd = &cobra.Command{
	Use:   "run <files...>",
	Short: "Start a workflow over one or more documents",
	Long: `Start a workflow over the given procurement documents.

Text, Markdown, HTML, DOCX and EML files are supported. A directory adds
every visible file below it. Project context is
passed to every agent; values are parsed as JSON when they are valid JSON
and kept as strings otherwise.

The pipeline runs inside this process, so the command only exits once the
workflow reaches a terminal status. With --wait, progress is shown while it
runs: an interactive view on a terminal and plain lines otherwise.

Examples:
  autorfp run tender.md annex-a.docx --wait
  autorfp run rfp.md -c client="Acme Council" -c budget=250000 --wait --stream`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

// isTerminal reports whether w is an interactive terminal.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// watchInteractive renders the progress view; swapped in tests.
var watchInteractive = func(ctx context.Context, id string, stream bool) (*domain.Workflow, error) {
	return tui.RunProgress(ctx, workflowService, id, tui.ProgressOptions{Stream: stream})
}

func init() {
	runCmd.Flags().StringArrayP("context", "c", nil, "Project context as key=value (repeatable)")
	runCmd.Flags().BoolP("wait", "w", false, "Show progress until the workflow finishes")
	runCmd.Flags().Bool("stream", false, "Print streamed model output while waiting")
	runCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := requireWorkflows(); err != nil {
		return err
	}

	pairs, _ := cmd.Flags().GetStringArray("context")
	wait, _ := cmd.Flags().GetBool("wait")
	stream, _ := cmd.Flags().GetBool("stream")
	asJSON, _ := cmd.Flags().GetBool("json")

	projectContext, err := parseContext(pairs)
	if err != nil {
		return err
	}
	uploads, err := readUploads(args)
	if err != nil {
		return err
	}

	wf, err := workflowService.Submit(cmd.Context(), uploads, projectContext)
	if err != nil {
		return fmt.Errorf("failed to start workflow: %w", err)
	}

	if !wait {
		if asJSON {
			return printJSON(cmd, viewOf(wf))
		}
		cmd.Printf("Workflow %s started with %d document(s)\n", wf.ID, len(uploads))
		cmd.Printf("Run 'autorfp status %s' from another terminal to follow progress.\n", wf.ID)
		return nil
	}

	var final *domain.Workflow
	if !asJSON && isTerminal(cmd.OutOrStdout()) {
		final, err = watchInteractive(cmd.Context(), wf.ID, stream)
	} else {
		final, err = watchPlain(cmd, wf.ID, stream && !asJSON, !asJSON)
	}
	if err != nil {
		return err
	}

	if asJSON {
		if err := printJSON(cmd, viewOf(final)); err != nil {
			return err
		}
	} else {
		cmd.Println()
		printWorkflow(cmd, final)
	}
	if final.Status == domain.WorkflowFailed {
		return fmt.Errorf("workflow %s failed: %s", final.ID, final.ErrorMessage)
	}
	return nil
}

// watchPlain prints progress events as lines until the workflow stops.
func watchPlain(cmd *cobra.Command, id string, stream, verbose bool) (*domain.Workflow, error) {
	ctx := cmd.Context()
	events, unsubscribe := workflowService.Subscribe(id)
	defer unsubscribe()

	streaming := false
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return workflowService.Wait(ctx, id)
			}
			if !verbose {
				continue
			}
			if ev.Chunk != "" {
				if stream {
					cmd.Print(ev.Chunk)
					streaming = true
				}
				continue
			}
			if streaming {
				cmd.Println()
				streaming = false
			}
			line := fmt.Sprintf("[%3d%%] %-22s %s", ev.Progress, ev.Step, ev.Status)
			if ev.Message != "" {
				line += "  " + ev.Message
			}
			cmd.Println(line)
		}
	}
}

// readUploads loads each file into an upload. Directories are walked and
// every visible regular file below them is included. The MIME type is left
// for the service to detect.
func readUploads(paths []string) ([]domain.Upload, error) {
	files, err := expandPaths(paths)
	if err != nil {
		return nil, err
	}
	uploads := make([]domain.Upload, 0, len(files))
	for _, p := range files {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		uploads = append(uploads, domain.Upload{
			Filename: filepath.Base(p),
			Path:     abs,
			Content:  content,
		})
	}
	return uploads, nil
}

// expandPaths replaces directories with the files below them, in lexical
// order. Hidden files and directories are skipped.
func expandPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != p && isHidden(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}
	}
	return out, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// parseContext turns key=value pairs into project context.
func parseContext(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid context %q: expected key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}
