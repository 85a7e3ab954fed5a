package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/autorfp/internal/core/agents"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/logger"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

const promptExt = ".txt"

// PromptStore loads agent role instructions from user-editable files on disk.
// Each prompt lives in <dir>/<name>.txt with fallback to the compiled-in
// defaults.
//
// Files are only created on first Load, not in the constructor.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	defaults  map[string]string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to <DefaultDir>/prompts.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		promptDir = filepath.Join(dir, "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		defaults:  agents.DefaultPrompts(),
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt for name. A missing or empty file yields the
// compiled-in default.
func (s *PromptStore) Load(name string) (string, error) {
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		if prompt, ok := s.defaults[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	prompt, err := s.loadFromFile(name)
	if err != nil || prompt == "" {
		if defaultPrompt, ok := s.defaults[name]; ok {
			return defaultPrompt, nil
		}
		if err == nil {
			err = fmt.Errorf("empty file")
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	// Keep a concurrent loader's value if it won the race
	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// Watch evicts a cached prompt whenever its file changes. It blocks until
// ctx is done. onChange, if non-nil, receives the prompt name after eviction.
func (s *PromptStore) Watch(ctx context.Context, onChange func(name string)) error {
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		return s.initErr
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(s.promptDir); err != nil {
		return fmt.Errorf("watch %s: %w", s.promptDir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
				!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			base := filepath.Base(ev.Name)
			if filepath.Ext(base) != promptExt {
				continue
			}
			name := strings.TrimSuffix(base, promptExt)
			s.evict(name)
			logger.Debug("prompts: %s changed", name)
			if onChange != nil {
				onChange(name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("prompts: watcher error: %v", err)
		}
	}
}

func (s *PromptStore) evict(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}

// initialise creates the prompt directory and writes default files that do
// not exist yet.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	for name, content := range s.defaults {
		path := filepath.Join(s.promptDir, name+promptExt)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

func (s *PromptStore) loadFromFile(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.promptDir, name+promptExt))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	var b strings.Builder
	b.WriteString("# autorfp prompts\n\n")
	b.WriteString("Each file holds the role instruction of one pipeline agent.\n\n")
	b.WriteString("## Files\n\n")
	for _, name := range []string{
		driven.PromptIngestion,
		driven.PromptRequirements,
		driven.PromptQuestions,
		driven.PromptAnswerFallback,
		driven.PromptCompilation,
	} {
		fmt.Fprintf(&b, "- `%s%s`\n", name, promptExt)
	}
	b.WriteString("\n## Customisation\n\n")
	b.WriteString("Edit a file to change how its agent behaves. Keep the JSON reply\n")
	b.WriteString("format the instruction asks for, or replies fall back to pattern\n")
	b.WriteString("extraction. Delete a file to restore its default on the next run.\n")
	return os.WriteFile(path, []byte(b.String()), 0600)
}
