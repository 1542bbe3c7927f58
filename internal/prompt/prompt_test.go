package prompt_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/strategybench/internal/domain"
	"github.com/ahrav/strategybench/internal/prompt"
)

// TestRender_DefaultLayout verifies the layout used by templates without
// placeholders: template and strategy as system text, question as user text.
func TestRender_DefaultLayout(t *testing.T) {
	tpl := prompt.Template{Keyword: "math", Body: "请解答下面的问题"}

	p := prompt.Render(tpl, "逐步推理", "1+1=?")

	assert.Equal(t, "请解答下面的问题\n\n【解题策略】\n逐步推理\n", p.System)
	assert.Equal(t, "\n【题目】\n1+1=?", p.User)
}

// TestRender_Placeholders verifies inline substitution into a single user
// message.
func TestRender_Placeholders(t *testing.T) {
	tpl := prompt.Template{Keyword: "math", Body: "Strategy: {strategy}\nQ: {question}\nAgain: {question}"}

	p := prompt.Render(tpl, "think", "why?")

	assert.Empty(t, p.System)
	assert.Equal(t, "Strategy: think\nQ: why?\nAgain: why?", p.User)
}

// TestRender_Pure verifies that rendering does not depend on call history.
func TestRender_Pure(t *testing.T) {
	tpl := prompt.Template{Keyword: "k", Body: "body"}
	assert.Equal(t, prompt.Render(tpl, "s", "q"), prompt.Render(tpl, "s", "q"))
}

// TestLoadTemplates verifies loading and lookup of the template source.
func TestLoadTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"examples": [
		{"keyword": "math", "prefix_prompt": "solve"},
		{"keyword": "physics", "prefix_prompt": "explain"}
	]}`), 0o600))

	store, err := prompt.LoadTemplates(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"math", "physics"}, store.Keywords())

	tpl, err := store.Lookup("physics")
	require.NoError(t, err)
	assert.Equal(t, "explain", tpl.Body)

	_, err = store.Lookup("chemistry")
	assert.ErrorIs(t, err, prompt.ErrTemplateNotFound)
}

// TestLoadTemplates_Errors verifies that malformed sources fail at load time.
func TestLoadTemplates_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "invalid json", content: `{"examples": [`, wantErr: prompt.ErrTemplateMalformed},
		{name: "empty keyword", content: `{"examples": [{"keyword": " ", "prefix_prompt": "x"}]}`, wantErr: prompt.ErrTemplateMalformed},
		{name: "empty body", content: `{"examples": [{"keyword": "k", "prefix_prompt": ""}]}`, wantErr: prompt.ErrTemplateMalformed},
		{name: "duplicate", content: `{"examples": [{"keyword": "k", "prefix_prompt": "a"}, {"keyword": "k", "prefix_prompt": "b"}]}`, wantErr: prompt.ErrTemplateMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "templates.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := prompt.LoadTemplates(path)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := prompt.LoadTemplates(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// TestTemplateStore_Require verifies that every missing category is reported.
func TestTemplateStore_Require(t *testing.T) {
	store, err := prompt.NewTemplateStore(prompt.Template{Keyword: "math", Body: "b"})
	require.NoError(t, err)

	require.NoError(t, store.Require("math"))

	err = store.Require("math", "physics", "biology")
	require.ErrorIs(t, err, prompt.ErrTemplateNotFound)
	assert.Contains(t, err.Error(), `"physics"`)
	assert.Contains(t, err.Error(), `"biology"`)
}

// TestCatalog verifies catalog loading, ordering and selection.
func TestCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"name": "cot", "description": "Chain-of-Thought"},
		{"name": "sc", "description": "Self-Consistency"},
		{"name": "tot"}
	]`), 0o600))

	catalog, err := prompt.LoadCatalog(path)
	require.NoError(t, err)
	require.Equal(t, 3, catalog.Len())

	names := func(c prompt.Catalog) []domain.StrategyID {
		var out []domain.StrategyID
		for _, s := range c.Strategies() {
			out = append(out, s.Name)
		}
		return out
	}
	assert.Equal(t, []domain.StrategyID{"cot", "sc", "tot"}, names(catalog))

	selected, err := catalog.Select("tot", "cot")
	require.NoError(t, err)
	assert.Equal(t, []domain.StrategyID{"cot", "tot"}, names(selected), "selection keeps catalog order")

	all, err := catalog.Select()
	require.NoError(t, err)
	assert.Equal(t, catalog.Len(), all.Len())

	_, err = catalog.Select("cot", "nope")
	assert.ErrorIs(t, err, prompt.ErrUnknownStrategy)
}

// TestNewCatalog_Errors verifies catalog validation.
func TestNewCatalog_Errors(t *testing.T) {
	_, err := prompt.NewCatalog()
	assert.ErrorIs(t, err, prompt.ErrCatalogMalformed)

	_, err = prompt.NewCatalog(domain.Strategy{Name: "a"}, domain.Strategy{Name: "a"})
	assert.ErrorIs(t, err, prompt.ErrCatalogMalformed)

	_, err = prompt.NewCatalog(domain.Strategy{Description: "nameless"})
	assert.ErrorIs(t, err, prompt.ErrCatalogMalformed)
}
