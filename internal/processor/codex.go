package processor

import "github.com/Hey-Diga/imploid/internal/model"

// CodexDriver builds argv for the codex processor: the prompt is passed
// as the last positional argument after exec --full-auto
// --dangerously-bypass-approvals-and-sandbox.
type CodexDriver struct{}

func (CodexDriver) Name() model.ProcessorName { return model.ProcessorCodex }

func (CodexDriver) BuildArgv(binPath, prompt string) []string {
	return []string{
		binPath,
		"exec",
		"--full-auto",
		"--dangerously-bypass-approvals-and-sandbox",
		prompt,
	}
}
