package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/yumyai/varenrich/internal/util"
	"github.com/yumyai/varenrich/pkg/filter"
	"github.com/yumyai/varenrich/pkg/model"
	"github.com/yumyai/varenrich/pkg/scoring"
	"github.com/yumyai/varenrich/pkg/stats"
)

var (
	ErrNoVariantFiles = errors.New("project has no variant files")
	ErrNoRefs         = errors.New("annotation references are not configured")
	ErrEmptyPanel     = errors.New("no background sample in the selected populations")
)

// cohort pairs one side of the comparison with the file it starts from.
type cohort struct {
	name  string
	input string
	art   *model.CohortArtifacts
}

func (r *run) cohorts(control string) []cohort {
	return []cohort{
		{name: "case", input: r.artifacts.Annotated, art: &r.artifacts.Case},
		{name: "control", input: control, art: &r.artifacts.Control},
	}
}

func (o *Orchestrator) workDir(r *run) (string, error) {
	return util.EnsureDir(r.artifacts.Dir(o.opts.ProjectsDir, r.project.ID))
}

// assemble merges the uploaded files, sorts and normalizes the result and
// annotates it.
func (o *Orchestrator) assemble(ctx context.Context, r *run) (model.State, error) {
	refs := o.opts.Refs
	if refs.ReferenceFasta == "" || refs.GnomadVCF == "" || refs.TranscriptDB == "" {
		return "", ErrNoRefs
	}

	files, err := o.store.ListVariantFiles(ctx, r.project.ID)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoVariantFiles
	}

	dir, err := util.EnsureDir(r.artifacts.AssemblyDir(o.opts.ProjectsDir, r.project.ID))
	if err != nil {
		return "", err
	}

	merged := files[0].Path
	if len(files) > 1 {
		paths := make([]string, len(files))
		for i, f := range files {
			paths[i] = f.Path
		}
		if merged, err = o.tools.MergeAndIndex(ctx, paths, filepath.Join(dir, "merged.vcf")); err != nil {
			return "", err
		}
	}

	sorted, err := o.tools.SortNormalize(ctx, merged, filepath.Join(dir, "case.vcf.gz"))
	if err != nil {
		return "", err
	}
	annotated, err := o.tools.Annotate(ctx, sorted, refs, filepath.Join(dir, "case.annotated.vcf.gz"))
	if err != nil {
		return "", err
	}

	r.log.Info("Assembled case file", zap.Int("files", len(files)), zap.String("annotated", annotated))
	r.artifacts.Annotated = annotated
	return model.StateAnnotated, nil
}

// filter carries case and reference cohort through the same chain of
// filters, then either submits the results for scoring or goes straight to
// the analysis.
func (o *Orchestrator) filter(ctx context.Context, r *run) (model.State, error) {
	cfg := r.project.Config

	bg, err := o.store.GetBackgroundSet(ctx, cfg.Background)
	if err != nil {
		return "", err
	}
	genes, err := filter.ReadGeneTable(cfg.InheritanceFile)
	if err != nil {
		return "", err
	}
	dir, err := o.workDir(r)
	if err != nil {
		return "", err
	}

	var panel []string
	if cfg.FilterPopulation {
		if panel, err = filter.ReadPopulationPanel(bg.Population, cfg.Populations); err != nil {
			return "", err
		}
		if len(panel) == 0 {
			return "", fmt.Errorf("%w: %v", ErrEmptyPanel, cfg.Populations)
		}
	}

	rule := filter.RuleForConfig(cfg)
	qc := filter.SynonymousRule()
	path := func(c cohort, step string) string {
		return filepath.Join(dir, c.name+"."+step)
	}

	for _, c := range r.cohorts(bg.File) {
		cur := c.input

		if cfg.RegionsFile != "" {
			if cur, err = o.tools.RegionFilter(ctx, cur, cfg.RegionsFile, path(c, "regions.vcf.gz")); err != nil {
				return "", err
			}
			c.art.Regions = cur
		}

		if cur, err = o.tools.ExpressionFilter(ctx, cur, filter.FrequencyExpr(cfg.Frequency).String(), path(c, "frequency.vcf")); err != nil {
			return "", err
		}
		c.art.Frequency = cur

		// population selection only applies to the reference cohort
		if c.name == "control" && cfg.FilterPopulation {
			if cur, err = o.tools.PopulationSubset(ctx, cur, panel, path(c, "population.vcf")); err != nil {
				return "", err
			}
			c.art.Population = cur
		}

		if c.art.Impact, err = o.tools.ExpressionFilter(ctx, cur, rule.Expr().String(), path(c, "impact.vcf")); err != nil {
			return "", err
		}
		final := path(c, "final.vcf")
		kept, err := filter.RestrictGenes(c.art.Impact, final, rule, genes)
		if err != nil {
			return "", err
		}
		c.art.Final = final

		if c.art.QCImpact, err = o.tools.ExpressionFilter(ctx, cur, qc.Expr().String(), path(c, "qc.impact.vcf")); err != nil {
			return "", err
		}
		qcFinal := path(c, "qc.final.vcf")
		qcKept, err := filter.RestrictGenes(c.art.QCImpact, qcFinal, qc, genes)
		if err != nil {
			return "", err
		}
		c.art.QCFinal = qcFinal

		r.log.Info("Filtered cohort", zap.String("cohort", c.name), zap.Int("records", kept), zap.Int("qc_records", qcKept))
	}

	if !cfg.ScoringEnabled() {
		return model.StateAnalyzing, nil
	}
	o.submit(ctx, r)
	return model.StateCaddWaiting, nil
}

// submit sends every final file without a recorded submission id to the
// scoring service. Failures are logged and left for the next check.
func (o *Orchestrator) submit(ctx context.Context, r *run) {
	for _, c := range r.cohorts("") {
		if c.art.Submission != "" || c.art.Final == "" {
			continue
		}
		id, err := o.scoring.Submit(ctx, c.art.Final)
		if err != nil || id == "" {
			o.metrics.scoring("submit", "error")
			r.log.Warn("Scoring submission failed", zap.String("cohort", c.name), zap.Error(err))
			continue
		}
		o.metrics.scoring("submit", "ok")
		c.art.Submission = id
	}
}

// checkScores submits what has not been submitted yet and downloads what
// has not been downloaded yet. It may run any number of times.
func (o *Orchestrator) checkScores(ctx context.Context, r *run) (model.State, error) {
	o.submit(ctx, r)

	cs := r.cohorts("")
	if cs[0].art.Submission == "" && cs[1].art.Submission == "" {
		return model.StateCaddError, nil
	}

	dir, err := o.workDir(r)
	if err != nil {
		return "", err
	}

	for _, c := range cs {
		if c.art.Submission == "" || c.art.ScoreTable != "" {
			continue
		}
		table, err := o.scoring.Fetch(ctx, c.art.Submission, filepath.Join(dir, c.name+".scores.tsv.gz"))
		switch {
		case errors.Is(err, scoring.ErrNotReady):
			o.metrics.scoring("fetch", "not_ready")
			r.log.Info("Scores not ready", zap.String("cohort", c.name), zap.String("submission", c.art.Submission))
		case err != nil:
			o.metrics.scoring("fetch", "error")
			r.log.Warn("Score download failed", zap.String("cohort", c.name), zap.Error(err))
		default:
			o.metrics.scoring("fetch", "ok")
			c.art.ScoreTable = table
		}
	}

	if cs[0].art.ScoreTable != "" && cs[1].art.ScoreTable != "" {
		return model.StateCaddFiltering, nil
	}
	return model.StateCaddWaiting, nil
}

// scoreFilter merges the downloaded scores into the final files and applies
// the score cutoff.
func (o *Orchestrator) scoreFilter(ctx context.Context, r *run) (model.State, error) {
	cfg := r.project.Config
	if !cfg.ScoringEnabled() {
		return "", fmt.Errorf("%w: scoring is not configured", model.ErrInvalidConfig)
	}
	dir, err := o.workDir(r)
	if err != nil {
		return "", err
	}

	expr := filter.ScoreExpr(*cfg.CaddScore).String()
	for _, c := range r.cohorts("") {
		rows, err := scoring.ReadScores(c.art.ScoreTable)
		if err != nil {
			return "", err
		}
		merged := filepath.Join(dir, c.name+".scores.merged.vcf")
		missing, err := scoring.Merge(rows, c.art.Final, merged)
		if err != nil {
			return "", err
		}
		if c.art.Scored, err = o.tools.ExpressionFilter(ctx, merged, expr, filepath.Join(dir, c.name+".scored.vcf")); err != nil {
			return "", err
		}
		r.log.Info("Merged scores", zap.String("cohort", c.name), zap.Int("rows", len(rows)), zap.Int("unscored", missing))
	}
	return model.StateAnalyzing, nil
}

// analyze counts, tests and writes the result tables of the main run and of
// the synonymous control run.
func (o *Orchestrator) analyze(ctx context.Context, r *run) (model.State, error) {
	genes, err := filter.ReadGeneTable(r.project.Config.InheritanceFile)
	if err != nil {
		return "", err
	}
	dir, err := o.workDir(r)
	if err != nil {
		return "", err
	}
	a := r.artifacts

	type pass struct {
		suffix  string
		input   func(*model.CohortArtifacts) string
		counts  func(*model.CohortArtifacts) (*string, *string)
		results func() (*string, *string)
	}
	passes := []pass{
		{
			suffix:  "",
			input:   func(c *model.CohortArtifacts) string { return c.AnalysisInput() },
			counts:  func(c *model.CohortArtifacts) (*string, *string) { return &c.Counts, &c.Collapsed },
			results: func() (*string, *string) { return &a.Stats, &a.QQ },
		},
		{
			suffix:  ".qc",
			input:   func(c *model.CohortArtifacts) string { return c.QCFinal },
			counts:  func(c *model.CohortArtifacts) (*string, *string) { return &c.QCCounts, &c.QCCollapsed },
			results: func() (*string, *string) { return &a.QCStats, &a.QCQQ },
		},
	}

	for _, p := range passes {
		var collapsed [2]*stats.Matrix
		for i, c := range r.cohorts("") {
			m, err := stats.Count(p.input(c.art), genes)
			if err != nil {
				return "", err
			}
			rawPath, collapsedPath := p.counts(c.art)
			*rawPath = filepath.Join(dir, c.name+p.suffix+".csv")
			if err := m.WriteCSV(*rawPath); err != nil {
				return "", err
			}
			collapsed[i] = m.Collapse()
			*collapsedPath = filepath.Join(dir, c.name+p.suffix+".collapsed.csv")
			if err := collapsed[i].WriteCSV(*collapsedPath); err != nil {
				return "", err
			}
		}

		result := stats.Enrichment(collapsed[0], collapsed[1])
		statsPath, qqPath := p.results()
		*statsPath = filepath.Join(dir, "stats"+p.suffix+".csv")
		if err := stats.WriteStats(*statsPath, result); err != nil {
			return "", err
		}
		*qqPath = filepath.Join(dir, "qq"+p.suffix+".csv")
		if err := stats.WriteQQ(*qqPath, stats.QQ(stats.PValues(result))); err != nil {
			return "", err
		}
		if len(result) > 0 {
			r.log.Info("Enrichment computed", zap.String("pass", "main"+p.suffix), zap.Int("genes", len(result)),
				zap.String("top_gene", result[0].Gene), zap.Float64("top_p", result[0].PValue))
		}
	}

	if o.exporter != nil {
		files := []string{
			a.Stats, a.QQ, a.QCStats, a.QCQQ,
			a.Case.Counts, a.Case.Collapsed, a.Control.Counts, a.Control.Collapsed,
		}
		if err := o.exporter.Export(ctx, r.project.ID, a.Generation, files); err != nil {
			// results stay available locally
			r.log.Warn("Result export failed", zap.Error(err))
		} else {
			a.Exported = true
		}
	}
	return model.StateDone, nil
}
