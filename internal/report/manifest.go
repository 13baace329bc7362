package report

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/dedupe-cli/internal/utils"
)

// Manifest records one run for later auditing.
type Manifest struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Input            string    `json:"input"`
	Settings         Settings  `json:"settings"`
	Rows             int       `json:"rows"`
	Blocks           int       `json:"blocks"`
	TotalComparisons int       `json:"total_comparisons"`
	Comparisons      int       `json:"comparisons"`
	DuplicateRecords int       `json:"duplicate_records"`
	Groups           []Group   `json:"groups"`
	Outputs          []string  `json:"outputs,omitempty"`
	Warnings         []string  `json:"warnings,omitempty"`
}

// NewManifest stamps a fresh run id and start time.
func NewManifest(input string, st Settings) *Manifest {
	return &Manifest{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Input:     input,
		Settings:  st,
	}
}

// Finish copies the run outcome from r and stamps the finish time.
func (m *Manifest) Finish(r *Report) {
	m.FinishedAt = time.Now().UTC()
	m.Rows = r.Rows
	m.Blocks = r.Plan.Blocks
	m.TotalComparisons = r.Plan.Comparisons
	m.Comparisons = r.Comparisons
	m.DuplicateRecords = r.Summary.DuplicateRecords
	m.Groups = r.Groups
	if m.Groups == nil {
		m.Groups = []Group{}
	}
	m.Warnings = append(m.Warnings, r.Warnings...)
}

// Save writes the manifest as indented JSON.
func (m *Manifest) Save(path string) error {
	b, err := utils.PrettyJSON(m)
	if err != nil {
		return err
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a manifest written by Save.
func LoadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := utils.DecodeJSON(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
