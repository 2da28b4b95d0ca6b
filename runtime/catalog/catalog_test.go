package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
)

const jsonTemplates = `[
  {"license_name": "Open", "allow_redistribution": true, "allow_modification": true, "allow_backup": true},
  {"license_name": "Closed", "allow_redistribution": false, "allow_modification": false, "allow_backup": false,
   "restrictions_note": "Ask the author first"}
]`

const yamlTemplates = `
- license_name: Archive only
  allow_backup: true
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParse_JSON(t *testing.T) {
	templates, err := Parse([]byte(jsonTemplates))
	require.NoError(t, err)
	require.Len(t, templates, 2)

	assert.Equal(t, "Open", templates[0].Name)
	assert.Equal(t, license.Permissions{AllowRedistribution: true, AllowModification: true, AllowBackup: true}, templates[0].Permissions)
	require.NotNil(t, templates[1].RestrictionsNote)
	assert.Equal(t, "Ask the author first", *templates[1].RestrictionsNote)
}

func TestParse_YAML(t *testing.T) {
	templates, err := Parse([]byte(yamlTemplates))
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.True(t, templates[0].Permissions.AllowBackup)
	assert.False(t, templates[0].Permissions.AllowModification)
}

func TestParse_RejectsDuplicatesAndBlankNames(t *testing.T) {
	_, err := Parse([]byte(`[{"license_name": "A"}, {"license_name": "A"}, {"license_name": " "}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate name "A"`)
	assert.ErrorIs(t, err, license.ErrEmptyName)
}

func TestFileCatalog_LookupAndReload(t *testing.T) {
	path := writeFile(t, jsonTemplates)
	c, err := NewFileCatalog(path)
	require.NoError(t, err)
	ctx := context.Background()

	assert.Len(t, c.All(ctx), 2)
	tpl, ok := c.ByName(ctx, "Closed")
	require.True(t, ok)
	assert.False(t, tpl.Permissions.AllowBackup)
	_, ok = c.ByName(ctx, "Missing")
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte(yamlTemplates), 0o600))
	require.NoError(t, c.Reload())
	assert.Len(t, c.All(ctx), 1)

	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o600))
	assert.Error(t, c.Reload())
	assert.Len(t, c.All(ctx), 1, "failed reload keeps previous templates")
}

func TestFileCatalog_MissingFile(t *testing.T) {
	_, err := NewFileCatalog(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorContains(t, err, "read templates")
}

func TestStatic_AllReturnsCopy(t *testing.T) {
	s := Static{{Name: "A"}}
	all := s.All(context.Background())
	all[0].Name = "B"
	assert.Equal(t, "A", s[0].Name)
}
