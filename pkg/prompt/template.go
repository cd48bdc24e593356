// Package prompt renders the curator/analyst prompt templates used by
// pkg/llm. Adapted from the teacher's text/template wrapper with strict
// variable validation; the teacher's System/User/Context Builder is dropped
// since the curator and analyst each render a single flat prompt string
// (original_source/pipeline_v2/{curador_llm,analista_llm}.py build prompts
// the same way, via str.format on one template).
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Template wraps text/template with input validation.
type Template struct {
	name      string
	tmpl      *template.Template
	variables []string
}

// New parses templateStr (Go template syntax: {{.VariableName}}) and
// extracts the variables it requires.
func New(name, templateStr string) (*Template, error) {
	tmpl, err := template.New(name).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("prompt: invalid template syntax: %w", err)
	}
	return &Template{name: name, tmpl: tmpl, variables: extractVariables(templateStr)}, nil
}

// MustNew parses templateStr and panics if it is invalid. Used for the
// fixed curator/analyst templates compiled once at package init.
func MustNew(name, templateStr string) *Template {
	t, err := New(name, templateStr)
	if err != nil {
		panic(err)
	}
	return t
}

// Render executes the template, failing if any required variable is
// missing from vars.
func (t *Template) Render(vars map[string]any) (string, error) {
	missing := make([]string, 0)
	for _, v := range t.variables {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt: missing required variables: %s", strings.Join(missing, ", "))
	}

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("prompt: template execution failed: %w", err)
	}
	return buf.String(), nil
}

// Variables returns the list of variables this template expects.
func (t *Template) Variables() []string {
	return append([]string{}, t.variables...)
}

// extractVariables scans a template string for top-level {{.VarName}}
// references.
func extractVariables(templateStr string) []string {
	vars := make(map[string]struct{})
	inBrace := false
	current := strings.Builder{}

	for i := 0; i < len(templateStr)-1; i++ {
		if templateStr[i] == '{' && templateStr[i+1] == '{' {
			inBrace = true
			current.Reset()
			i++
			continue
		}
		if inBrace && templateStr[i] == '}' && i+1 < len(templateStr) && templateStr[i+1] == '}' {
			inBrace = false
			varExpr := strings.TrimSpace(current.String())
			if strings.HasPrefix(varExpr, ".") {
				varName := strings.TrimPrefix(varExpr, ".")
				if idx := strings.Index(varName, "."); idx != -1 {
					varName = varName[:idx]
				}
				if idx := strings.Index(varName, " "); idx != -1 {
					varName = varName[:idx]
				}
				if varName != "" && isValidIdentifier(varName) {
					vars[varName] = struct{}{}
				}
			}
			i++
			continue
		}
		if inBrace {
			current.WriteByte(templateStr[i])
		}
	}

	result := make([]string, 0, len(vars))
	for v := range vars {
		result = append(result, v)
	}
	return result
}

func isValidIdentifier(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_') {
				return false
			}
		} else if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_') {
			return false
		}
	}
	return true
}
