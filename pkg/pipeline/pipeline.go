// Package pipeline runs the five ordered stages of §4.3 against a single
// job: extract, heuristic filter, curate (conditional), analyze, commit.
// Adapted from the teacher's pkg/agent.StateMachine/WorkflowBuilder — the
// same fixed linear-transition shape (named stages, OnEnter/OnExit-style
// hooks, a terminal state) generalized away from an LLM-agent Run loop onto
// plain stage functions operating on a job's artifacts, since this domain's
// stages are fixed and data-driven rather than agent-decided.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/plattargus/detalhar/pkg/artifact"
	"github.com/plattargus/detalhar/pkg/core"
	"github.com/plattargus/detalhar/pkg/heuristic"
)

// Hooks mirrors the teacher's agent.Hooks shape: optional lifecycle
// callbacks a caller can observe without the pipeline itself knowing about
// queues or HTTP. cmd/worker sets none of them.
type Hooks struct {
	OnStageStart func(jobID string, stage core.Stage)
	OnStageDone  func(jobID string, stage core.Stage, path string)
	OnError      func(jobID string, stage core.Stage, err error)
}

// Pipeline runs a job through every stage, persisting artifacts and
// advancing store.SaveStage after each.
type Pipeline struct {
	artifacts *artifact.Store
	extractor core.Extractor
	curator   core.Curator
	analyst   core.Analyst
	useLLM    bool
	hooks     Hooks
}

// Config constructs a Pipeline.
type Config struct {
	Artifacts *artifact.Store
	Extractor core.Extractor
	Curator   core.Curator
	Analyst   core.Analyst
	UseLLM    bool
	Hooks     Hooks
}

// New builds a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		artifacts: cfg.Artifacts,
		extractor: cfg.Extractor,
		curator:   cfg.Curator,
		analyst:   cfg.Analyst,
		useLLM:    cfg.UseLLM,
		hooks:     cfg.Hooks,
	}
}

// SaveStage is the callback the worker loop provides to persist a job's
// status_stage + artifact path transactionally after each pipeline step.
// artifactKey is one of "raw"/"heur"/"case"/"resumo", matching
// core.Store.SaveStage's paths map keys.
type SaveStage func(ctx context.Context, jobID string, stage core.Stage, artifactKey, path string) error

// Result is the terminal output of a full pipeline run, ready for
// store.FinishDone.
type Result struct {
	ResultJSON []byte
	ResultPath string
}

// Run drives job through every stage in order, calling save after each one
// persists its artifact. On failure it returns the failing stage's error
// (such as core.ErrSchemaViolation or core.ErrRetryable), or
// core.ErrNoDocuments when extraction found nothing; the caller decides
// retry/terminal disposition.
func (p *Pipeline) Run(ctx context.Context, job *core.Job, creds core.Credentials, save SaveStage) (Result, error) {
	started := time.Now()

	dump, err := p.runExtract(ctx, job, creds, save)
	if err != nil {
		return Result{}, err
	}
	if len(dump.Documents) == 0 {
		return Result{}, p.stageErr(job, core.StageExtracted, fmt.Errorf("pipeline: %w", core.ErrNoDocuments))
	}
	docsOriginal := len(dump.Documents)

	heur, err := p.runHeuristic(ctx, job, dump, save)
	if err != nil {
		return Result{}, err
	}

	curated := false
	var curatorCost float64
	if heur.NeedsCuration && p.useLLM && p.curator != nil {
		heur, curatorCost, err = p.runCurate(ctx, job, heur, save)
		if err != nil {
			return Result{}, err
		}
		curated = true
	}

	var analysis core.AnalysisResult
	var resumoPath string
	if p.useLLM && p.analyst != nil {
		analysis, resumoPath, err = p.runAnalyze(ctx, job, heur, save)
		if err != nil {
			return Result{}, err
		}
	} else {
		analysis = core.AnalysisResult{DocsAnalisados: len(heur.Documentos)}
	}

	modo := modeFor(p.useLLM, curated)
	totalCost := curatorCost + analysis.Meta.CostUSD
	elapsedMS := time.Since(started).Milliseconds()

	return p.runCommit(job, analysis, resumoPath, modo, docsOriginal, totalCost, elapsedMS)
}

// modeFor reports which stages actually ran, mirroring
// orquestrador.py's resultado["modo"] assignment.
func modeFor(useLLM, curated bool) string {
	switch {
	case !useLLM:
		return "APENAS_HEURISTICA"
	case curated:
		return "CURADOR+ANALISTA"
	default:
		return "ANALISTA_DIRETO"
	}
}

func (p *Pipeline) stageStart(job *core.Job, stage core.Stage) {
	if p.hooks.OnStageStart != nil {
		p.hooks.OnStageStart(job.ID, stage)
	}
}

func (p *Pipeline) stageDone(job *core.Job, stage core.Stage, path string) {
	if p.hooks.OnStageDone != nil {
		p.hooks.OnStageDone(job.ID, stage, path)
	}
}

func (p *Pipeline) stageErr(job *core.Job, stage core.Stage, err error) error {
	if p.hooks.OnError != nil {
		p.hooks.OnError(job.ID, stage, err)
	}
	return err
}

func (p *Pipeline) runExtract(ctx context.Context, job *core.Job, creds core.Credentials, save SaveStage) (core.ProcessDump, error) {
	p.stageStart(job, core.StageExtracted)

	dump, err := p.extractor.Extract(ctx, job.NUP, creds)
	if err != nil {
		return core.ProcessDump{}, p.stageErr(job, core.StageExtracted, fmt.Errorf("pipeline: extract: %w", err))
	}

	path, err := p.artifacts.WriteJSON(artifact.StageRaw, job.ID, dump)
	if err != nil {
		return core.ProcessDump{}, p.stageErr(job, core.StageExtracted, fmt.Errorf("pipeline: write raw artifact: %w", err))
	}
	if err := save(ctx, job.ID, core.StageExtracted, "raw", path); err != nil {
		return core.ProcessDump{}, p.stageErr(job, core.StageExtracted, err)
	}

	p.stageDone(job, core.StageExtracted, path)
	return dump, nil
}

func (p *Pipeline) runHeuristic(ctx context.Context, job *core.Job, dump core.ProcessDump, save SaveStage) (core.HeuristicOutput, error) {
	p.stageStart(job, core.StageHeur)

	out := heuristic.Run(dump)

	path, err := p.artifacts.WriteJSON(artifact.StageHeur, job.ID, out)
	if err != nil {
		return core.HeuristicOutput{}, p.stageErr(job, core.StageHeur, fmt.Errorf("pipeline: write heuristic artifact: %w", err))
	}
	if err := save(ctx, job.ID, core.StageHeur, "heur", path); err != nil {
		return core.HeuristicOutput{}, p.stageErr(job, core.StageHeur, err)
	}

	p.stageDone(job, core.StageHeur, path)
	return out, nil
}

func (p *Pipeline) runCurate(ctx context.Context, job *core.Job, h core.HeuristicOutput, save SaveStage) (core.HeuristicOutput, float64, error) {
	p.stageStart(job, core.StageCase)

	selection, err := p.curator.Curate(ctx, h)
	if err != nil {
		return h, 0, p.stageErr(job, core.StageCase, fmt.Errorf("pipeline: curate: %w", err))
	}

	curated := applySelection(h, selection)

	path, err := p.artifacts.WriteJSON(artifact.StageCase, job.ID, struct {
		core.HeuristicOutput
		Selection core.CuratorSelection `json:"selection"`
	}{curated, selection})
	if err != nil {
		return h, 0, p.stageErr(job, core.StageCase, fmt.Errorf("pipeline: write case artifact: %w", err))
	}
	if err := save(ctx, job.ID, core.StageCase, "case", path); err != nil {
		return h, 0, p.stageErr(job, core.StageCase, err)
	}

	p.stageDone(job, core.StageCase, path)
	return curated, selection.Meta.CostUSD, nil
}

// applySelection filters h down to the curator's chosen indices, falling
// back to the full set if the selection is empty (never let a degenerate
// curator response discard every document).
func applySelection(h core.HeuristicOutput, sel core.CuratorSelection) core.HeuristicOutput {
	if len(sel.SelectedIndices) == 0 {
		return h
	}
	want := make(map[int]bool, len(sel.SelectedIndices))
	for _, idx := range sel.SelectedIndices {
		want[idx] = true
	}

	kept := make([]core.ClassifiedDocument, 0, len(sel.SelectedIndices))
	var chars int
	for _, d := range h.Documentos {
		if want[d.Index] {
			kept = append(kept, d)
			chars += len(d.Conteudo)
		}
	}
	return core.HeuristicOutput{
		NUP:           h.NUP,
		Documentos:    kept,
		TotalChars:    chars,
		NeedsCuration: false,
	}
}

// runAnalyze produces the resumo artifact: the structured, executive-summary
// context handed to the downstream analysis consumer. It is the pipeline's
// last LLM stage — there is no separate artifact for the commit step, which
// only packages this same artifact into the job's result_json/result_path.
func (p *Pipeline) runAnalyze(ctx context.Context, job *core.Job, h core.HeuristicOutput, save SaveStage) (core.AnalysisResult, string, error) {
	p.stageStart(job, core.StageResumo)

	analysis, err := p.analyst.Analyze(ctx, h)
	if err != nil {
		return core.AnalysisResult{}, "", p.stageErr(job, core.StageResumo, fmt.Errorf("pipeline: analyze: %w", err))
	}

	path, err := p.artifacts.WriteJSON(artifact.StageResumo, job.ID, analysis)
	if err != nil {
		return core.AnalysisResult{}, "", p.stageErr(job, core.StageResumo, fmt.Errorf("pipeline: write resumo artifact: %w", err))
	}
	if err := save(ctx, job.ID, core.StageResumo, "resumo", path); err != nil {
		return core.AnalysisResult{}, "", p.stageErr(job, core.StageResumo, err)
	}

	p.stageDone(job, core.StageResumo, path)
	return analysis, path, nil
}

// runCommit packages the resumo artifact as the job's final result and marks
// it done; no new artifact is written at this stage (§4.3 stage 5).
func (p *Pipeline) runCommit(job *core.Job, analysis core.AnalysisResult, resumoPath, modo string, docsOriginal int, totalCost float64, elapsedMS int64) (Result, error) {
	resultJSON, err := marshalResult(summarize(analysis, modo, docsOriginal, totalCost, elapsedMS))
	if err != nil {
		return Result{}, p.stageErr(job, core.StageResumo, fmt.Errorf("pipeline: marshal result: %w", err))
	}
	return Result{ResultJSON: resultJSON, ResultPath: resumoPath}, nil
}

// summary is the result returned by GET /jobs/{id}/result and stored as
// result_json, mirroring orquestrador.py's resultado dict: the analyst's
// structured fields plus the consolidated mode/cost/timing metrics it
// reports once the pipeline finishes.
type summary struct {
	Modo            string         `json:"modo"`
	Interessado     map[string]any `json:"interessado"`
	Pedido          map[string]any `json:"pedido"`
	Situacao        map[string]any `json:"situacao"`
	Fluxo           map[string]any `json:"fluxo"`
	ResumoExecutivo string         `json:"resumo_executivo"`
	Alertas         []string       `json:"alertas"`
	Sugestao        string         `json:"sugestao"`
	Confianca       float64        `json:"confianca"`
	DocsOriginal    int            `json:"docs_original"`
	DocsAnalisados  int            `json:"docs_analisados"`
	CustoTotalUSD   float64        `json:"custo_total_usd"`
	TempoTotalMS    int64          `json:"tempo_total_ms"`
	GeneratedAt     string         `json:"generated_at"`
}

func marshalResult(s summary) ([]byte, error) {
	return json.Marshal(s)
}

func summarize(a core.AnalysisResult, modo string, docsOriginal int, totalCost float64, elapsedMS int64) summary {
	return summary{
		Modo:            modo,
		Interessado:     a.Interessado,
		Pedido:          a.Pedido,
		Situacao:        a.Situacao,
		Fluxo:           a.Fluxo,
		ResumoExecutivo: a.ResumoExecutivo,
		Alertas:         a.Alertas,
		Sugestao:        a.Sugestao,
		Confianca:       a.Confianca,
		DocsOriginal:    docsOriginal,
		DocsAnalisados:  a.DocsAnalisados,
		CustoTotalUSD:   totalCost,
		TempoTotalMS:    elapsedMS,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
	}
}
