// Package promptloader resolves and caches prompt templates by
// precedence, substituting ${issueNumber} into the cached template
// text. This mechanism replaces the original
// orchestrator's hardcoded XML prompt string in
// lib/claude_processor.py with file-backed, per-processor templates.
package promptloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/Hey-Diga/imploid/internal/imploiderr"
	"github.com/Hey-Diga/imploid/internal/model"
)

const issueNumberToken = "${issueNumber}"

// Loader resolves prompt templates by processor and optional override,
// caching template text by absolute path for the process lifetime.
type Loader struct {
	PromptsDir         string // ~/.imploid/prompts
	InstalledDefaultsDir string

	mu    sync.Mutex
	cache map[string]string
}

// New returns a Loader rooted at promptsDir (override precedence) with
// installedDefaultsDir as the final fallback location.
func New(promptsDir, installedDefaultsDir string) *Loader {
	return &Loader{
		PromptsDir:            promptsDir,
		InstalledDefaultsDir: installedDefaultsDir,
		cache:                 make(map[string]string),
	}
}

// candidates builds the precedence-ordered candidate file list for
// (processor, override).
func (l *Loader) candidates(processor model.ProcessorName, override string) []string {
	if override != "" {
		if filepath.IsAbs(override) || strings.HasPrefix(override, "~") {
			path := override
			if filepath.Ext(path) == "" {
				path += ".md"
			}
			return []string{path}
		}
		return []string{
			filepath.Join(l.PromptsDir, override+".md"),
			filepath.Join(l.InstalledDefaultsDir, override+".md"),
		}
	}
	name := string(processor) + "-default.md"
	return []string{
		filepath.Join(l.PromptsDir, name),
		filepath.Join(l.InstalledDefaultsDir, name),
	}
}

// Load resolves the prompt template for (processor, issueNumber,
// override), substituting every ${issueNumber} occurrence.
func (l *Loader) Load(processor model.ProcessorName, issueNumber int, override string) (string, error) {
	candidates := l.candidates(processor, override)

	var chosen string
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			chosen = c
			break
		}
	}
	if chosen == "" {
		display := override
		if display == "" {
			display = string(processor) + "-default"
		}
		return "", &imploiderr.PromptNotFoundError{Display: display, Candidates: candidates}
	}

	text, err := l.readCached(chosen)
	if err != nil {
		return "", fmt.Errorf("read prompt template %s: %w", chosen, err)
	}

	return strings.ReplaceAll(text, issueNumberToken, strconv.Itoa(issueNumber)), nil
}

func (l *Loader) readCached(path string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if text, ok := l.cache[path]; ok {
		return text, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(data)
	l.cache[path] = text
	return text, nil
}
