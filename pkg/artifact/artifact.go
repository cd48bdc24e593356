// Package artifact persists the immutable per-stage JSON blobs described in
// §3/§4.3 (raw/, heur_v2/, case/, resumo/), one file per job per stage,
// written temp-then-rename so a reader never observes a partial write.
// Grounded on the directory layout implied by
// original_source/pipeline_v2/config.py's RAW_DIR/HEUR_DIR/ANALISE_DIR.
// case/ holds the curator's consolidated selection (conditional LLM pass);
// resumo/ holds the analyst's executive-summary artifact, which doubles as
// the job's final result_path — there is no separate commit-stage artifact.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Stage names the four artifact subdirectories.
type Stage string

const (
	StageRaw    Stage = "raw"
	StageHeur   Stage = "heur_v2"
	StageCase   Stage = "case"
	StageResumo Stage = "resumo"
)

// Store writes and reads stage artifacts under a root directory.
type Store struct {
	root string
}

// New creates an artifact store rooted at root, creating the stage
// subdirectories if they don't already exist.
func New(root string) (*Store, error) {
	for _, stage := range []Stage{StageRaw, StageHeur, StageCase, StageResumo} {
		if err := os.MkdirAll(filepath.Join(root, string(stage)), 0o755); err != nil {
			return nil, fmt.Errorf("artifact: mkdir %s: %w", stage, err)
		}
	}
	return &Store{root: root}, nil
}

// Path returns the on-disk path for a job's artifact at a given stage,
// without writing anything.
func (s *Store) Path(stage Stage, jobID string) string {
	return filepath.Join(s.root, string(stage), jobID+".json")
}

// WriteJSON marshals v and atomically writes it to the stage artifact path
// for jobID, returning the final path. The standard library's
// os.CreateTemp + os.Rename is used directly — no library in the pack
// offers atomic-write-then-rename better than stdlib, and the guarantee
// (same filesystem, POSIX rename is atomic) depends on staying in the same
// directory, which a generic helper library would not improve on.
func (s *Store) WriteJSON(stage Stage, jobID string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("artifact: marshal %s/%s: %w", stage, jobID, err)
	}

	dir := filepath.Join(s.root, string(stage))
	tmp, err := os.CreateTemp(dir, jobID+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("artifact: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("artifact: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("artifact: close temp: %w", err)
	}

	finalPath := filepath.Join(dir, jobID+".json")
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("artifact: rename into place: %w", err)
	}
	return finalPath, nil
}

// ReadJSON reads and unmarshals the artifact at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("artifact: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("artifact: unmarshal %s: %w", path, err)
	}
	return nil
}
