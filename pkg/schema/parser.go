// Package schema provides generic structured-output parsing for LLM chat
// completions: force JSON, strip any fenced code block the model wrapped it
// in, and unmarshal into a caller-supplied Go type. Adapted from the
// teacher's Parser[T] (pkg/schema/parser.go), generalized from a single
// core.LLM dependency to a plain ChatFunc so pkg/llm's curator and analyst
// clients (which speak OpenAI's chat-completions wire format directly, not
// the teacher's core.LLM abstraction) can both use it. The fence-stripping
// step is new: original_source/pipeline_v2/{curador_llm,analista_llm}.py
// both do `if "```" in conteudo: conteudo = conteudo.split("```")[1]...`
// before parsing, because the underlying models routinely wrap JSON in a
// ```json fence despite being told not to.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ChatFunc sends systemPrompt/userPrompt to an LLM and returns its raw text
// response.
type ChatFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// Parser forces an LLM to return JSON matching T and parses it.
type Parser[T any] struct {
	chat         ChatFunc
	systemPrompt string
}

// NewParser creates a parser that appends a "respond with JSON only"
// instruction to the caller's system instructions on every call.
func NewParser[T any](chat ChatFunc, instructions string) *Parser[T] {
	return &Parser[T]{
		chat:         chat,
		systemPrompt: instructions + "\n\nRespond with valid JSON only, no additional text.",
	}
}

// Parse sends prompt to the LLM and unmarshals its (possibly fenced)
// response into T.
func (p *Parser[T]) Parse(ctx context.Context, prompt string) (T, string, error) {
	var result T

	raw, err := p.chat(ctx, p.systemPrompt, prompt)
	if err != nil {
		return result, "", fmt.Errorf("schema: chat call failed: %w", err)
	}

	cleaned := StripFence(raw)
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return result, cleaned, fmt.Errorf("schema: parse JSON response: %w", err)
	}
	return result, cleaned, nil
}

// StripFence removes a single ```json ... ``` (or bare ``` ... ```) fence
// wrapping a response, mirroring the original's
// `conteudo.split("```")[1].replace("json", "")` behavior.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return s
	}
	parts := strings.Split(s, "```")
	if len(parts) < 2 {
		return s
	}
	body := strings.TrimSpace(parts[1])
	body = strings.TrimPrefix(body, "json")
	return strings.TrimSpace(body)
}
