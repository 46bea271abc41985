package prompt_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/prompt"
)

func writeTemplateFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestStore_Get_BuiltinTemplates(t *testing.T) {
	s, err := prompt.NewStore("")
	require.NoError(t, err)

	text, err := s.Get(domain.ModalityText, prompt.TaskTransaction)
	require.NoError(t, err)
	assert.Equal(t, "text-transaction", text.Name)
	assert.ElementsMatch(t, []string{"input_text", "locale", "currency"}, text.Placeholders)

	image, err := s.Get(domain.ModalityImage, prompt.TaskTransaction)
	require.NoError(t, err)
	assert.Equal(t, "image-transaction", image.Name)
	assert.ElementsMatch(t, []string{"caption", "locale", "currency"}, image.Placeholders)
}

func TestStore_Get_UnknownTask(t *testing.T) {
	s, err := prompt.NewStore("")
	require.NoError(t, err)

	tpl, err := s.Get(domain.ModalityText, "summarize")
	assert.Nil(t, tpl)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTemplateNotFound))
	assert.Contains(t, err.Error(), "text/summarize")
}

func TestTemplate_Render_SubstitutesEveryPlaceholder(t *testing.T) {
	s, err := prompt.NewStore("")
	require.NoError(t, err)

	tpl, err := s.Get(domain.ModalityText, prompt.TaskTransaction)
	require.NoError(t, err)

	out, err := tpl.Render(map[string]string{
		"input_text": "外送平台結算 $2,400",
		"locale":     "zh-TW",
		"currency":   "TWD",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "外送平台結算 $2,400")
	assert.Contains(t, out, "zh-TW")
	assert.Contains(t, out, "TWD")
	assert.NotContains(t, out, "{input_text}")
	assert.NotContains(t, out, "{locale}")
	assert.NotContains(t, out, "{currency}")
}

func TestTemplate_Render_MissingValue(t *testing.T) {
	s, err := prompt.NewStore("")
	require.NoError(t, err)

	tpl, err := s.Get(domain.ModalityImage, prompt.TaskTransaction)
	require.NoError(t, err)

	out, err := tpl.Render(map[string]string{"locale": "zh-TW", "currency": "TWD"})
	assert.Empty(t, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{caption}")
}

func TestTemplate_Validate_BodyMissingPlaceholder(t *testing.T) {
	tpl := prompt.Template{
		Name:         "broken",
		Modality:     domain.ModalityText,
		Task:         prompt.TaskTransaction,
		Version:      1,
		Body:         "no slots here",
		Placeholders: []string{"input_text"},
	}

	err := tpl.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{input_text}")
}

func TestStore_FileOverridesBuiltin(t *testing.T) {
	path := writeTemplateFile(t, `
templates:
  - name: custom-text
    modality: text
    task: transaction
    version: 2
    body: "Locale {locale}, currency {currency}. Input: {input_text}"
    placeholders:
      - input_text
      - locale
      - currency
`)

	s, err := prompt.NewStore(path)
	require.NoError(t, err)

	text, err := s.Get(domain.ModalityText, prompt.TaskTransaction)
	require.NoError(t, err)
	assert.Equal(t, "custom-text", text.Name)
	assert.Equal(t, 2, text.Version)

	// The image built-in is untouched.
	image, err := s.Get(domain.ModalityImage, prompt.TaskTransaction)
	require.NoError(t, err)
	assert.Equal(t, "image-transaction", image.Name)
}

func TestStore_Reload_FailureKeepsPreviousSnapshot(t *testing.T) {
	path := writeTemplateFile(t, `
templates:
  - name: custom-text
    modality: text
    task: transaction
    version: 2
    body: "Input: {input_text}"
    placeholders:
      - input_text
`)

	s, err := prompt.NewStore(path)
	require.NoError(t, err)

	// Rewrite the file with a template whose body lost its placeholder.
	require.NoError(t, os.WriteFile(path, []byte(`
templates:
  - name: custom-text
    modality: text
    task: transaction
    version: 3
    body: "placeholder went missing"
    placeholders:
      - input_text
`), 0o600))

	err = s.Reload()
	require.Error(t, err)

	text, err := s.Get(domain.ModalityText, prompt.TaskTransaction)
	require.NoError(t, err)
	assert.Equal(t, 2, text.Version)
}

func TestStore_Reload_DuplicateFileEntries(t *testing.T) {
	path := writeTemplateFile(t, `
templates:
  - name: first
    modality: text
    task: transaction
    version: 1
    body: "Input: {input_text}"
    placeholders:
      - input_text
  - name: second
    modality: text
    task: transaction
    version: 1
    body: "Input: {input_text}"
    placeholders:
      - input_text
`)

	s, err := prompt.NewStore(path)
	assert.Nil(t, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both target text/transaction")
}

func TestStore_NewStore_MissingFile(t *testing.T) {
	s, err := prompt.NewStore(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Nil(t, s)
	assert.Error(t, err)
}
