package promptloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hey-Diga/imploid/internal/imploiderr"
	"github.com/Hey-Diga/imploid/internal/model"
)

func TestLoad_SubstitutesIssueNumberOnly(t *testing.T) {
	dir := t.TempDir()
	tmpl := "Work on issue ${issueNumber}. Do not touch ${other} or $123."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "claude-default.md"), []byte(tmpl), 0o644))

	l := New(dir, filepath.Join(dir, "installed"))
	text, err := l.Load(model.ProcessorClaude, 42, "")
	require.NoError(t, err)
	assert.Equal(t, "Work on issue 42. Do not touch ${other} or $123.", text)
}

func TestLoad_OverridePrecedence(t *testing.T) {
	overridesDir := t.TempDir()
	installedDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(overridesDir, "custom.md"), []byte("override ${issueNumber}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(installedDir, "custom.md"), []byte("installed ${issueNumber}"), 0o644))

	l := New(overridesDir, installedDir)
	text, err := l.Load(model.ProcessorClaude, 7, "custom")
	require.NoError(t, err)
	assert.Equal(t, "override 7", text)
}

func TestLoad_FallsBackToInstalledDefaults(t *testing.T) {
	overridesDir := t.TempDir()
	installedDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(installedDir, "custom.md"), []byte("installed ${issueNumber}"), 0o644))

	l := New(overridesDir, installedDir)
	text, err := l.Load(model.ProcessorClaude, 7, "custom")
	require.NoError(t, err)
	assert.Equal(t, "installed 7", text)
}

func TestLoad_AbsoluteOverridePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abs.md")
	require.NoError(t, os.WriteFile(path, []byte("abs ${issueNumber}"), 0o644))

	l := New(t.TempDir(), t.TempDir())
	text, err := l.Load(model.ProcessorClaude, 9, path)
	require.NoError(t, err)
	assert.Equal(t, "abs 9", text)
}

func TestLoad_NotFound(t *testing.T) {
	l := New(t.TempDir(), t.TempDir())
	_, err := l.Load(model.ProcessorCodex, 1, "")
	require.Error(t, err)
	var notFound *imploiderr.PromptNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "codex-default", notFound.Display)
}

func TestLoad_CachesTemplateText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "claude-default.md")
	require.NoError(t, os.WriteFile(path, []byte("v1 ${issueNumber}"), 0o644))

	l := New(dir, t.TempDir())
	first, err := l.Load(model.ProcessorClaude, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "v1 1", first)

	require.NoError(t, os.WriteFile(path, []byte("v2 ${issueNumber}"), 0o644))
	second, err := l.Load(model.ProcessorClaude, 2, "")
	require.NoError(t, err)
	assert.Equal(t, "v1 2", second)
}
