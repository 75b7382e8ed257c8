package processor

import "github.com/Hey-Diga/imploid/internal/model"

// ClaudeDriver builds argv for the claude processor. Per the original
// orchestrator's lib/claude_processor.py, claude receives the prompt via
// -p with stream-json output so session_id can be captured line-by-line.
type ClaudeDriver struct{}

func (ClaudeDriver) Name() model.ProcessorName { return model.ProcessorClaude }

func (ClaudeDriver) BuildArgv(binPath, prompt string) []string {
	return []string{
		binPath,
		"--dangerously-skip-permissions",
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
	}
}
