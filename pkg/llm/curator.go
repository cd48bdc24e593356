package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/plattargus/detalhar/pkg/core"
	"github.com/plattargus/detalhar/pkg/schema"
)

// ModelCurador is the model used for document curation, matching
// original_source/pipeline_v2/config.py's MODELO_CURADOR.
const ModelCurador = "gpt-4o-mini"

// curatorResponse is the curator's raw JSON shape
// (docs_selecionados/resumo_rapido/confianca, per curador_llm.py).
type curatorResponse struct {
	DocsSelecionados []int   `json:"docs_selecionados"`
	ResumoRapido     string  `json:"resumo_rapido"`
	Confianca        float64 `json:"confianca"`
}

// Curator prunes a document set to 8-12 essentials via a cheap model
// (§4.3 stage 3, only invoked when HeuristicOutput.NeedsCuration is true).
type Curator struct {
	client *ChatClient
}

// NewCurator builds a Curator backed by apiKey.
func NewCurator(apiKey string) *Curator {
	return &Curator{client: New(apiKey, ModelCurador, "curator")}
}

// asChatFunc adapts c.Chat to schema.ChatFunc, stashing the call's Result
// (token counts, latency) in last for the caller to read afterward. A failed
// call is wrapped as core.ErrRetryable, so it is never mistaken for a
// response that failed to parse.
func (c *ChatClient) asChatFunc(maxTokens int, last *Result) schema.ChatFunc {
	return func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		res, err := c.Chat(ctx, systemPrompt, userPrompt, maxTokens)
		if err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrRetryable, err)
		}
		*last = res
		return res.Content, nil
	}
}

// Curate selects the essential documents out of h, per §4.3 stage 3.
func (c *Curator) Curate(ctx context.Context, h core.HeuristicOutput) (core.CuratorSelection, error) {
	prompt, err := curatorTemplate.Render(map[string]any{
		"NUP":        h.NUP,
		"TotalDocs":  len(h.Documentos),
		"TotalChars": h.TotalChars,
		"DocList":    formatDocList(h),
	})
	if err != nil {
		return core.CuratorSelection{}, fmt.Errorf("llm: render curator prompt: %w", err)
	}

	var call Result
	parser := schema.NewParser[curatorResponse](c.client.asChatFunc(1500, &call), curatorSystemPrompt)
	parsed, _, err := parser.Parse(ctx, prompt)
	if err != nil {
		if errors.Is(err, core.ErrRetryable) {
			return core.CuratorSelection{}, fmt.Errorf("llm: curator call: %w", err)
		}
		return core.CuratorSelection{}, fmt.Errorf("%w: curator response: %v", core.ErrSchemaViolation, err)
	}

	return core.CuratorSelection{
		SelectedIndices: parsed.DocsSelecionados,
		Rationale:       parsed.ResumoRapido,
		Confidence:      parsed.Confianca,
		Meta: core.LLMCallMeta{
			Model:      ModelCurador,
			Tokens:     call.Tokens,
			DurationMS: call.Millis,
			CostUSD:    CuratorCostUSD(call.PromptTokens, call.CompletionTokens),
		},
	}, nil
}

// formatDocList renders the one-line-per-document summary the curator
// reads, mirroring curador_llm.py's formatar_lista().
func formatDocList(h core.HeuristicOutput) string {
	var b strings.Builder
	for _, d := range h.Documentos {
		fmt.Fprintf(&b, "[%2d] %-12s|%-18s|%5dch|%s\n", d.Index, d.Tipo, d.Unidade, len(d.Conteudo), d.Prioridade)
	}
	return b.String()
}
