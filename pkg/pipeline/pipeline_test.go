package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plattargus/detalhar/pkg/artifact"
	"github.com/plattargus/detalhar/pkg/core"
	"github.com/plattargus/detalhar/pkg/pipeline"
)

type fakeExtractor struct{ dump core.ProcessDump }

func (f *fakeExtractor) Extract(ctx context.Context, nup string, creds core.Credentials) (core.ProcessDump, error) {
	return f.dump, nil
}

type fakeCurator struct{ selected []int }

func (f *fakeCurator) Curate(ctx context.Context, h core.HeuristicOutput) (core.CuratorSelection, error) {
	return core.CuratorSelection{SelectedIndices: f.selected}, nil
}

type fakeAnalyst struct{ result core.AnalysisResult }

func (f *fakeAnalyst) Analyze(ctx context.Context, h core.HeuristicOutput) (core.AnalysisResult, error) {
	return f.result, nil
}

func manyDocs(n int) []core.Document {
	docs := make([]core.Document, n)
	for i := range docs {
		docs[i] = core.Document{Index: i + 1, Conteudo: "texto curto"}
	}
	return docs
}

func newSavedStages() (pipeline.SaveStage, *[]core.Stage) {
	var saved []core.Stage
	return func(ctx context.Context, jobID string, stage core.Stage, artifactKey, path string) error {
		saved = append(saved, stage)
		return nil
	}, &saved
}

func TestRunSkipsCurateWhenHeuristicDoesNotFlagIt(t *testing.T) {
	store, err := artifact.New(t.TempDir())
	require.NoError(t, err)

	curator := &fakeCurator{}
	p := pipeline.New(pipeline.Config{
		Artifacts: store,
		Extractor: &fakeExtractor{dump: core.ProcessDump{NUP: "123", Documents: manyDocs(3)}},
		Curator:   curator,
		UseLLM:    true,
	})

	save, stages := newSavedStages()
	job := &core.Job{ID: "job-1", NUP: "123"}
	result, err := p.Run(context.Background(), job, core.Credentials{}, save)
	require.NoError(t, err)

	assert.NotContains(t, *stages, core.StageCase)
	assert.NotEmpty(t, result.ResultJSON)
}

func TestRunInvokesCuratorWhenDocCountTriggersCuration(t *testing.T) {
	store, err := artifact.New(t.TempDir())
	require.NoError(t, err)

	curator := &fakeCurator{selected: []int{1, 2}}
	analyst := &fakeAnalyst{result: core.AnalysisResult{ResumoExecutivo: "ok"}}
	p := pipeline.New(pipeline.Config{
		Artifacts: store,
		Extractor: &fakeExtractor{dump: core.ProcessDump{NUP: "123", Documents: manyDocs(11)}},
		Curator:   curator,
		Analyst:   analyst,
		UseLLM:    true,
	})

	save, stages := newSavedStages()
	job := &core.Job{ID: "job-2", NUP: "123"}
	result, err := p.Run(context.Background(), job, core.Credentials{}, save)
	require.NoError(t, err)

	assert.Contains(t, *stages, core.StageCase)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(result.ResultJSON, &parsed))
	assert.Equal(t, "CURADOR+ANALISTA", parsed["modo"])
}

func TestRunReportsAnalistaDiretoWhenCurationNotTriggered(t *testing.T) {
	store, err := artifact.New(t.TempDir())
	require.NoError(t, err)

	analyst := &fakeAnalyst{result: core.AnalysisResult{ResumoExecutivo: "ok"}}
	p := pipeline.New(pipeline.Config{
		Artifacts: store,
		Extractor: &fakeExtractor{dump: core.ProcessDump{NUP: "123", Documents: manyDocs(3)}},
		Analyst:   analyst,
		UseLLM:    true,
	})

	save, _ := newSavedStages()
	job := &core.Job{ID: "job-2b", NUP: "123"}
	result, err := p.Run(context.Background(), job, core.Credentials{}, save)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(result.ResultJSON, &parsed))
	assert.Equal(t, "ANALISTA_DIRETO", parsed["modo"])
}

func TestRunFailsTerminallyOnEmptyDocumentList(t *testing.T) {
	store, err := artifact.New(t.TempDir())
	require.NoError(t, err)

	analyst := &fakeAnalyst{}
	p := pipeline.New(pipeline.Config{
		Artifacts: store,
		Extractor: &fakeExtractor{dump: core.ProcessDump{NUP: "123", Documents: nil}},
		Analyst:   analyst,
		UseLLM:    true,
	})

	save, stages := newSavedStages()
	job := &core.Job{ID: "job-empty", NUP: "123"}
	_, err = p.Run(context.Background(), job, core.Credentials{}, save)

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoDocuments))
	assert.NotContains(t, *stages, core.StageResumo)
}

func TestRunSkipsAnalyzeWhenLLMDisabled(t *testing.T) {
	store, err := artifact.New(t.TempDir())
	require.NoError(t, err)

	p := pipeline.New(pipeline.Config{
		Artifacts: store,
		Extractor: &fakeExtractor{dump: core.ProcessDump{NUP: "123", Documents: manyDocs(3)}},
		UseLLM:    false,
	})

	save, stages := newSavedStages()
	job := &core.Job{ID: "job-3", NUP: "123"}
	result, err := p.Run(context.Background(), job, core.Credentials{}, save)
	require.NoError(t, err)

	assert.NotContains(t, *stages, core.StageResumo)
	assert.Empty(t, result.ResultPath)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(result.ResultJSON, &parsed))
	assert.Equal(t, "APENAS_HEURISTICA", parsed["modo"])
}

func TestRunUsesAnalystSummaryWhenLLMEnabled(t *testing.T) {
	store, err := artifact.New(t.TempDir())
	require.NoError(t, err)

	analyst := &fakeAnalyst{result: core.AnalysisResult{ResumoExecutivo: "tudo certo"}}
	p := pipeline.New(pipeline.Config{
		Artifacts: store,
		Extractor: &fakeExtractor{dump: core.ProcessDump{NUP: "123", Documents: manyDocs(3)}},
		Analyst:   analyst,
		UseLLM:    true,
	})

	save, _ := newSavedStages()
	job := &core.Job{ID: "job-4", NUP: "123"}
	result, err := p.Run(context.Background(), job, core.Credentials{}, save)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(result.ResultJSON), "tudo certo"))
	assert.NotEmpty(t, result.ResultPath)
}
