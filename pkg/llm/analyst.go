package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/plattargus/detalhar/pkg/core"
	"github.com/plattargus/detalhar/pkg/schema"
)

// ModelAnalista is the model used for structured analysis, matching
// original_source/pipeline_v2/config.py's MODELO_ANALISTA.
const ModelAnalista = "gpt-4.1-mini"

// curatorCostPerMTokIn/Out and analystCostPerMTokIn/Out are the per-million-
// token prices baked into curador_llm.py/analista_llm.py's cost formula:
// (prompt_tokens*price_in + completion_tokens*price_out) / 1_000_000.
const (
	curatorCostPerMTokIn  = 0.15
	curatorCostPerMTokOut = 0.60
	analystCostPerMTokIn  = 0.4
	analystCostPerMTokOut = 1.6
)

// analystResponse is the analyst's raw JSON shape, per analista_llm.py's
// PROMPT_ANALISTA field list.
type analystResponse struct {
	Interessado     map[string]any `json:"interessado"`
	Pedido          map[string]any `json:"pedido"`
	Situacao        map[string]any `json:"situacao"`
	Fluxo           map[string]any `json:"fluxo"`
	Prazos          []any          `json:"prazos"`
	Legislacao      []any          `json:"legislacao"`
	ResumoExecutivo string         `json:"resumo_executivo"`
	Alertas         []string       `json:"alertas"`
	Sugestao        string         `json:"sugestao"`
	Confianca       float64        `json:"confianca"`
}

// Analyst extracts structured case information from a (possibly curated)
// document set via an unconditional LLM call (§4.3 stage 4).
type Analyst struct {
	client *ChatClient
}

// NewAnalyst builds an Analyst backed by apiKey.
func NewAnalyst(apiKey string) *Analyst {
	return &Analyst{client: New(apiKey, ModelAnalista, "analyst")}
}

// Analyze produces a full AnalysisResult from h, per §4.3 stage 4.
func (a *Analyst) Analyze(ctx context.Context, h core.HeuristicOutput) (core.AnalysisResult, error) {
	prompt, err := analystTemplate.Render(map[string]any{
		"NUP":      h.NUP,
		"DocsText": formatDocsText(h),
	})
	if err != nil {
		return core.AnalysisResult{}, fmt.Errorf("llm: render analyst prompt: %w", err)
	}

	var call Result
	parser := schema.NewParser[analystResponse](a.client.asChatFunc(4000, &call), analystSystemPrompt)
	parsed, _, err := parser.Parse(ctx, prompt)
	if err != nil {
		if errors.Is(err, core.ErrRetryable) {
			return core.AnalysisResult{}, fmt.Errorf("llm: analyst call: %w", err)
		}
		return core.AnalysisResult{}, fmt.Errorf("%w: analyst response: %v", core.ErrSchemaViolation, err)
	}

	return core.AnalysisResult{
		Interessado:     parsed.Interessado,
		Pedido:          parsed.Pedido,
		Situacao:        parsed.Situacao,
		Fluxo:           parsed.Fluxo,
		Prazos:          parsed.Prazos,
		Legislacao:      parsed.Legislacao,
		ResumoExecutivo: parsed.ResumoExecutivo,
		Alertas:         parsed.Alertas,
		Sugestao:        parsed.Sugestao,
		Confianca:       parsed.Confianca,
		DocsAnalisados:  len(h.Documentos),
		Meta: core.LLMCallMeta{
			Model:      ModelAnalista,
			Tokens:     call.Tokens,
			DurationMS: call.Millis,
			CostUSD:    AnalystCostUSD(call.PromptTokens, call.CompletionTokens),
		},
	}, nil
}

// formatDocsText renders the full document bodies the analyst reads,
// mirroring analista_llm.py's formatar_docs().
func formatDocsText(h core.HeuristicOutput) string {
	var b strings.Builder
	for _, d := range h.Documentos {
		fmt.Fprintf(&b, "### Documento %d - %s (%s)\n%s\n\n", d.Index, d.Tipo, d.Unidade, d.Conteudo)
	}
	return b.String()
}

// CuratorCostUSD applies curador_llm.py's cost formula to a call's token
// counts.
func CuratorCostUSD(promptTokens, completionTokens int) float64 {
	return (float64(promptTokens)*curatorCostPerMTokIn + float64(completionTokens)*curatorCostPerMTokOut) / 1_000_000
}

// AnalystCostUSD applies analista_llm.py's cost formula to a call's token
// counts.
func AnalystCostUSD(promptTokens, completionTokens int) float64 {
	return (float64(promptTokens)*analystCostPerMTokIn + float64(completionTokens)*analystCostPerMTokOut) / 1_000_000
}
