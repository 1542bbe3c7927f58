// Package prompt holds the static prompt inputs of a run: the strategy
// catalog and the per-category templates, and renders them into the
// messages sent to the model.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Placeholders recognised in template bodies.
const (
	StrategyPlaceholder = "{strategy}"
	QuestionPlaceholder = "{question}"
)

// Section headers of the default layout, used when a template carries no
// placeholders. They match the exam corpus' own markup.
const (
	strategyHeader = "【解题策略】"
	questionHeader = "【题目】"
)

var (
	// ErrTemplateNotFound indicates that no template matches a category.
	ErrTemplateNotFound = errors.New("prompt template not found")

	// ErrTemplateMalformed indicates that the template source is invalid.
	ErrTemplateMalformed = errors.New("prompt template malformed")
)

// Template is the prompt body for one category.
type Template struct {
	// Keyword equals the category identifier the template applies to.
	Keyword string `json:"keyword"`
	Body    string `json:"prefix_prompt"`
}

// hasPlaceholders reports whether the body uses inline substitution.
func (t Template) hasPlaceholders() bool {
	return strings.Contains(t.Body, StrategyPlaceholder) || strings.Contains(t.Body, QuestionPlaceholder)
}

// Prompt is a rendered request: an optional system message and the user
// message.
type Prompt struct {
	System string
	User   string
}

// Render substitutes the strategy guidance and question into tpl.
//
// A body containing {strategy} or {question} is filled in place and sent as
// a single user message. Any other body is used as the system message with
// the strategy appended under its own header, and the question becomes the
// user message.
func Render(tpl Template, strategyText, questionText string) Prompt {
	if tpl.hasPlaceholders() {
		r := strings.NewReplacer(StrategyPlaceholder, strategyText, QuestionPlaceholder, questionText)
		return Prompt{User: r.Replace(tpl.Body)}
	}

	return Prompt{
		System: tpl.Body + "\n\n" + strategyHeader + "\n" + strategyText + "\n",
		User:   "\n" + questionHeader + "\n" + questionText,
	}
}

// templateDocument is the on-disk shape of the template source.
type templateDocument struct {
	Examples []Template `json:"examples"`
}

// TemplateStore maps category identifiers to templates. It is built once and
// read-only afterwards.
type TemplateStore struct {
	byKeyword map[string]Template
}

// LoadTemplates reads and validates the template source at path.
func LoadTemplates(path string) (*TemplateStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	var doc templateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTemplateMalformed, path, err)
	}
	return NewTemplateStore(doc.Examples...)
}

// NewTemplateStore validates templates and indexes them by keyword. Empty
// keywords, empty bodies and duplicate keywords are rejected.
func NewTemplateStore(templates ...Template) (*TemplateStore, error) {
	s := &TemplateStore{byKeyword: make(map[string]Template, len(templates))}
	for i, t := range templates {
		t.Keyword = strings.TrimSpace(t.Keyword)
		switch {
		case t.Keyword == "":
			return nil, fmt.Errorf("%w: template %d has no keyword", ErrTemplateMalformed, i)
		case strings.TrimSpace(t.Body) == "":
			return nil, fmt.Errorf("%w: template %q has an empty body", ErrTemplateMalformed, t.Keyword)
		}
		if _, dup := s.byKeyword[t.Keyword]; dup {
			return nil, fmt.Errorf("%w: duplicate keyword %q", ErrTemplateMalformed, t.Keyword)
		}
		s.byKeyword[t.Keyword] = t
	}
	return s, nil
}

// Lookup returns the template for category.
func (s *TemplateStore) Lookup(category string) (Template, error) {
	t, ok := s.byKeyword[category]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, category)
	}
	return t, nil
}

// Require reports every category in categories that has no template. It lets
// a run surface configuration gaps before spending on API calls.
func (s *TemplateStore) Require(categories ...string) error {
	var errs []error
	for _, c := range categories {
		if _, err := s.Lookup(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Keywords returns the known keywords, sorted.
func (s *TemplateStore) Keywords() []string {
	keys := make([]string, 0, len(s.byKeyword))
	for k := range s.byKeyword {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
