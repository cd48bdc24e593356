package core

import "context"

// Credentials is an opaque record the dispatcher hands to the extractor.
// Authentication/credential storage is out of scope (spec §1); the worker
// never inspects its contents, only passes it through.
type Credentials struct {
	ChatID string
	UserID string
	Token  string
}

// Document is one normalized document inside a ProcessDump, enriched enough
// for the deterministic heuristic stage to classify it (§4.3 stage 2).
type Document struct {
	Index        int
	DocID        string
	Titulo       string
	TipoRaw      string
	UnidadeRaw   string
	Conteudo     string
	DataRefDoc   string
	Assinado     bool
}

// ProcessDump is the opaque result of extracting a process's documents from
// the upstream web application.
type ProcessDump struct {
	NUP       string
	Documents []Document
}

// Extractor is the out-of-scope browser-automation capability: it is
// declared here only as the interface the worker depends on (spec §1).
type Extractor interface {
	Extract(ctx context.Context, nup string, creds Credentials) (ProcessDump, error)
}

// CuratorSelection is the curator's pruned document selection.
type CuratorSelection struct {
	SelectedIndices []int
	Rationale       string
	Confidence      float64
	Meta            LLMCallMeta
}

// Curator prunes a large document set to the 8-12 essential indices
// (§4.3 stage 3). It is invoked only when the heuristic flags curation.
type Curator interface {
	Curate(ctx context.Context, h HeuristicOutput) (CuratorSelection, error)
}

// AnalysisResult is the analyst's structured output (§4.3 stage 4).
type AnalysisResult struct {
	Interessado      map[string]any `json:"interessado"`
	Pedido           map[string]any `json:"pedido"`
	Situacao         map[string]any `json:"situacao"`
	Fluxo            map[string]any `json:"fluxo"`
	Prazos           []any          `json:"prazos"`
	Legislacao       []any          `json:"legislacao"`
	ResumoExecutivo  string         `json:"resumo_executivo"`
	Alertas          []string       `json:"alertas"`
	Sugestao         string         `json:"sugestao"`
	Confianca        float64        `json:"confianca"`
	Meta             LLMCallMeta    `json:"_meta"`
	DocsAnalisados   int            `json:"docs_analisados"`
}

// Analyst produces the final structured summary (§4.3 stage 4, unconditional).
type Analyst interface {
	Analyze(ctx context.Context, h HeuristicOutput) (AnalysisResult, error)
}

// LLMCallMeta carries token/cost metadata for a single LLM call.
type LLMCallMeta struct {
	Model      string  `json:"model"`
	Tokens     int     `json:"tokens"`
	DurationMS int64   `json:"duration_ms"`
	CostUSD    float64 `json:"cost_usd"`
}

// DocPriority is the heuristic's deterministic urgency classification.
type DocPriority string

const (
	PrioridadeAlta  DocPriority = "ALTA"
	PrioridadeMedia DocPriority = "MEDIA"
	PrioridadeBaixa DocPriority = "BAIXA"
)

// ClassifiedDocument is one heuristic-annotated document.
type ClassifiedDocument struct {
	Index      int         `json:"posicao_processada"`
	Tipo       string      `json:"tipo"`
	Unidade    string      `json:"unidade"`
	Conteudo   string      `json:"conteudo"`
	Tags       []string    `json:"tags"`
	Prioridade DocPriority `json:"prioridade"`
}

// HeuristicOutput is the deterministic classifier's result, persisted to
// heur_v2/{job_id}.json (§4.3 stage 2) and handed to the curator/analyst.
type HeuristicOutput struct {
	NUP           string               `json:"nup"`
	Documentos    []ClassifiedDocument `json:"documentos"`
	TotalChars    int                  `json:"total_chars"`
	NeedsCuration bool                 `json:"needs_curation"`
}
