package model

import (
	"fmt"
	"path/filepath"
)

// CohortArtifacts are the intermediate files of one side of the comparison
// (case or control). Both sides always pass through the same filters.
type CohortArtifacts struct {
	Regions    string `json:"regions,omitempty"`
	Frequency  string `json:"frequency,omitempty"`
	Population string `json:"population,omitempty"`
	Impact     string `json:"impact,omitempty"`
	Final      string `json:"final,omitempty"`

	// Scoring service bookkeeping. Submission is never overwritten once set.
	Submission string `json:"submission,omitempty"`
	ScoreTable string `json:"score_table,omitempty"`
	Scored     string `json:"scored,omitempty"`

	Counts    string `json:"counts,omitempty"`
	Collapsed string `json:"collapsed,omitempty"`

	// Synonymous-variant control branch.
	QCImpact    string `json:"qc_impact,omitempty"`
	QCFinal     string `json:"qc_final,omitempty"`
	QCCounts    string `json:"qc_counts,omitempty"`
	QCCollapsed string `json:"qc_collapsed,omitempty"`
}

// AnalysisInput is the file the statistics stage counts: the score-filtered
// file when scoring ran, the gene-restricted file otherwise.
func (c CohortArtifacts) AnalysisInput() string {
	if c.Scored != "" {
		return c.Scored
	}
	return c.Final
}

// Artifacts is the single working set of a Project. Generation increases on
// every reset so that files of an old run are never mixed with a new one.
type Artifacts struct {
	Generation int    `json:"generation"`
	Annotated  string `json:"annotated,omitempty"`

	Case    CohortArtifacts `json:"case"`
	Control CohortArtifacts `json:"control"`

	Stats    string `json:"stats,omitempty"`
	QQ       string `json:"qq,omitempty"`
	QCStats  string `json:"qc_stats,omitempty"`
	QCQQ     string `json:"qc_qq,omitempty"`
	Exported bool   `json:"exported,omitempty"`
}

// ResetDownstream starts a new generation that keeps only the annotated case
// file. Used on reconfiguration.
func (a *Artifacts) ResetDownstream() {
	*a = Artifacts{Generation: a.Generation + 1, Annotated: a.Annotated}
}

// ResetAll starts an empty generation. Used when the file set changes.
func (a *Artifacts) ResetAll() {
	*a = Artifacts{Generation: a.Generation + 1}
}

// Dir is the scratch directory of the current generation.
func (a *Artifacts) Dir(projectsRoot, projectID string) string {
	return filepath.Join(projectsRoot, projectID, fmt.Sprintf("gen-%d", a.Generation))
}

// Path places a named artifact in the current generation directory.
func (a *Artifacts) Path(projectsRoot, projectID, name string) string {
	return filepath.Join(a.Dir(projectsRoot, projectID), name)
}

// AssemblyDir holds the merged and annotated case file of the generation
// that ran the assemble stage. It survives reconfiguration.
func (a *Artifacts) AssemblyDir(projectsRoot, projectID string) string {
	return filepath.Join(projectsRoot, projectID, fmt.Sprintf("assembly-%d", a.Generation))
}
