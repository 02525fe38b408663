// Package prompt renders the system prompt sent to the language model.
//
// The prompt is a text/template with two fields, {{.ChannelName}} and
// {{.User}}. It can be loaded from a file and reloaded when the file changes.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"
)

// DefaultTemplate is used when no prompt file is configured.
const DefaultTemplate = `Your name is {{.ChannelName}}. You are talking with a person named {{.User}}.
Answer user questions to the best of your knowledge and engage in helpful conversation.
When users ask about current events, stock prices, news, or anything that might have changed recently,
use the web search tool to find current information.`

// Data is the input to a prompt template.
type Data struct {
	ChannelName string
	User        string
}

// Template is a concurrency-safe, replaceable prompt template.
type Template struct {
	mu     sync.RWMutex
	tmpl   *template.Template
	source string
	path   string
}

func parse(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("prompt template is empty")
	}
	tmpl, err := template.New("system").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	// Unknown fields fail here rather than on the first message.
	if err := tmpl.Execute(&bytes.Buffer{}, Data{}); err != nil {
		return nil, fmt.Errorf("invalid prompt template: %w", err)
	}
	return tmpl, nil
}

// New creates a template from text.
func New(text string) (*Template, error) {
	tmpl, err := parse(text)
	if err != nil {
		return nil, err
	}
	return &Template{tmpl: tmpl, source: text}, nil
}

// Load creates a template from a file. An empty path yields DefaultTemplate.
func Load(path string) (*Template, error) {
	if path == "" {
		return New(DefaultTemplate)
	}

	t := &Template{path: path}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the template file. On error the previous template stays active.
func (t *Template) Reload() error {
	if t.path == "" {
		return nil
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("failed to read prompt file: %w", err)
	}

	tmpl, err := parse(string(data))
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.tmpl = tmpl
	t.source = string(data)
	t.mu.Unlock()
	return nil
}

// Render executes the template.
func (t *Template) Render(data Data) (string, error) {
	t.mu.RLock()
	tmpl := t.tmpl
	t.mu.RUnlock()

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Source returns the current template text.
func (t *Template) Source() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.source
}

// Path returns the file the template was loaded from, if any.
func (t *Template) Path() string {
	return t.path
}
