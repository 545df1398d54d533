package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Impact is the functional-consequence severity used by the impact filter.
type Impact string

const (
	ImpactLow      Impact = "LOW"
	ImpactModerate Impact = "MODERATE"
	ImpactHigh     Impact = "HIGH"
	// Quality-control category, matched on the consequence field instead of
	// the impact field.
	ImpactSynonymous Impact = "synonymous_variant"
)

func ParseImpact(s string) (Impact, error) {
	switch strings.TrimSpace(s) {
	case "":
		return "", nil
	case "LOW":
		return ImpactLow, nil
	case "MODERATE":
		return ImpactModerate, nil
	case "HIGH":
		return ImpactHigh, nil
	case "synonymous_variant":
		return ImpactSynonymous, nil
	}
	return "", fmt.Errorf("unknown impact %q", s)
}

func (i *Impact) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseImpact(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	*i = v
	return nil
}

const DefaultBackground = "IGSR"

var ErrInvalidConfig = errors.New("invalid project configuration")

// ProjectConfig holds the user-defined filtering settings of a Project.
type ProjectConfig struct {
	Impact          Impact   `json:"impact"`
	ImpactException Impact   `json:"impact_exception,omitempty"`
	GenesException  GeneList `json:"genes_exception,omitempty"`
	Frequency       float64  `json:"frequency"`
	Background      string   `json:"background"`

	FilterPopulation bool     `json:"filter_population"`
	Populations      []string `json:"populations,omitempty"`

	// nil disables the scoring service.
	CaddScore *float64 `json:"cadd_score,omitempty"`

	RegionsFile     string `json:"regions_file,omitempty"`
	InheritanceFile string `json:"inheritance_file"`
}

func DefaultConfig() ProjectConfig {
	return ProjectConfig{
		Impact:     ImpactModerate,
		Frequency:  0.001,
		Background: DefaultBackground,
	}
}

func (c ProjectConfig) Validate() error {
	switch c.Impact {
	case ImpactLow, ImpactModerate, ImpactHigh:
	default:
		return fmt.Errorf("%w: impact %q", ErrInvalidConfig, c.Impact)
	}
	switch c.ImpactException {
	case "", ImpactLow, ImpactModerate, ImpactHigh:
	default:
		return fmt.Errorf("%w: impact exception %q", ErrInvalidConfig, c.ImpactException)
	}
	if c.Frequency <= 0 || c.Frequency > 1 {
		return fmt.Errorf("%w: frequency %v out of (0, 1]", ErrInvalidConfig, c.Frequency)
	}
	if c.Background == "" {
		return fmt.Errorf("%w: background set required", ErrInvalidConfig)
	}
	if c.FilterPopulation && len(c.Populations) == 0 {
		return fmt.Errorf("%w: population filter enabled without populations", ErrInvalidConfig)
	}
	if c.InheritanceFile == "" {
		return fmt.Errorf("%w: inheritance file required", ErrInvalidConfig)
	}
	return nil
}

// ScoringEnabled reports whether the external scoring service takes part in
// the run.
func (c ProjectConfig) ScoringEnabled() bool {
	return c.CaddScore != nil
}

// GeneList decodes from a JSON array or from a free-text list as typed by
// users.
type GeneList []string

func (g *GeneList) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*g = SplitGenes(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*g = list
	return nil
}

// SplitGenes parses a comma/whitespace separated gene list as typed by users.
func SplitGenes(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

type Project struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	State     State         `json:"state"`
	Config    ProjectConfig `json:"config"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// BackgroundSet is a read-only reference cohort shared by all projects.
type BackgroundSet struct {
	Name       string `json:"name"`
	File       string `json:"file"`
	Population string `json:"population"`
}

// VariantFile is one uploaded per-sample call file.
type VariantFile struct {
	ID         int64  `json:"id"`
	ProjectID  string `json:"project_id"`
	SampleName string `json:"sample_name"`
	Path       string `json:"path"`
	Population string `json:"population,omitempty"`
}
