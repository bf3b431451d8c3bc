package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTemplates(t *testing.T) {
	s := Default()

	g, err := s.Render(Grounded, Vars{Query: "Can my landlord keep the deposit?", Context: "Section 21 ..."})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(g.System, "You are MeraVakil, a specialized legal assistant"))
	assert.Contains(t, g.User, "**Question:** Can my landlord keep the deposit?")
	assert.Contains(t, g.User, "**Relevant Legal Context:**\nSection 21 ...")

	gen, err := s.Render(General, Vars{Query: "What is a FIR?"})
	require.NoError(t, err)
	assert.Contains(t, gen.System, "without access to specific legal documents")
	assert.Contains(t, gen.System, "FORMAT: Use clear Markdown")
	assert.NotContains(t, gen.User, "Relevant Legal Context")
	assert.True(t, strings.HasSuffix(gen.User, "**Question:** What is a FIR?"))
}

func TestQueryIsNotReinterpreted(t *testing.T) {
	g, err := Default().Render(General, Vars{Query: "{{.Context}} <b>"})
	require.NoError(t, err)
	assert.Contains(t, g.User, "{{.Context}} <b>")
}

func TestLoadOverrideAndValidation(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
templates:
  grounded: {system: "G", user: "{{.Query}}|{{.Context}}"}
  general: {system: "N", user: "{{.Query}}"}
`), 0o600))
	s, err := Load(good)
	require.NoError(t, err)
	r, err := s.Render(Grounded, Vars{Query: "q", Context: "c"})
	require.NoError(t, err)
	assert.Equal(t, Rendered{System: "G", User: "q|c"}, r)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("templates:\n  grounded: {system: G, user: U}\n"), 0o600))
	_, err = Load(bad)
	require.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	_, err = s.Render("other", Vars{})
	require.Error(t, err)
}
