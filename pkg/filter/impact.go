package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yumyai/varenrich/pkg/model"
	"github.com/yumyai/varenrich/pkg/vcf"
)

var ErrMalformedAnnotation = errors.New("malformed annotation")

// Field positions inside one pipe-delimited annotation.
const (
	annConsequence = 1
	annImpact      = 2
	annGene        = 3
	annMinFields   = annGene + 1
)

// Annotation is the subset of one ANN entry the pipeline reads.
type Annotation struct {
	Consequence string
	Impact      string
	Gene        string
}

func ParseAnnotation(s string) (Annotation, error) {
	fields := strings.Split(s, "|")
	if len(fields) < annMinFields {
		return Annotation{}, fmt.Errorf("%w: %q has %d fields, need %d", ErrMalformedAnnotation, s, len(fields), annMinFields)
	}
	return Annotation{
		Consequence: fields[annConsequence],
		Impact:      fields[annImpact],
		Gene:        fields[annGene],
	}, nil
}

// ImpactRule is the impact selection of one run: the primary threshold, an
// exception threshold and the genes it applies to.
type ImpactRule struct {
	Impact         model.Impact
	Exception      model.Impact
	ExceptionGenes []string
	genes          map[string]bool
}

func NewImpactRule(impact, exception model.Impact, exceptionGenes []string) ImpactRule {
	r := ImpactRule{Impact: impact, Exception: exception, ExceptionGenes: exceptionGenes}
	r.genes = make(map[string]bool, len(exceptionGenes))
	for _, g := range exceptionGenes {
		r.genes[g] = true
	}
	return r
}

// RuleForConfig builds the rule of a project configuration.
func RuleForConfig(cfg model.ProjectConfig) ImpactRule {
	return NewImpactRule(cfg.Impact, cfg.ImpactException, cfg.GenesException)
}

// SynonymousRule is the quality-control rule.
func SynonymousRule() ImpactRule {
	return NewImpactRule(model.ImpactSynonymous, "", nil)
}

func (r ImpactRule) relaxedFor() bool {
	return r.Impact == model.ImpactHigh && r.Exception == model.ImpactModerate
}

func (r ImpactRule) tightenedFor() bool {
	return r.Impact == model.ImpactModerate && r.Exception == model.ImpactHigh
}

// Expr is the record-level expression passed to the expression filter tool.
// It selects a superset of the records holding an annotation that Accepts;
// the gene-restriction pass makes the exact per-annotation choice.
func (r ImpactRule) Expr() Expr {
	if r.Impact == model.ImpactSynonymous {
		return Contains{Key: vcf.AnnotationKey, Substr: string(model.ImpactSynonymous)}
	}

	expr := Or{hasImpact(model.ImpactHigh)}

	switch {
	case len(r.ExceptionGenes) == 0:
		if r.Impact != model.ImpactHigh {
			expr = append(expr, hasImpact(model.ImpactModerate))
		}
	case r.tightenedFor():
		// other annotations of the record may name an exception gene
		expr = append(expr, hasImpact(model.ImpactModerate))
	case r.relaxedFor():
		genes := Or{}
		for _, g := range r.ExceptionGenes {
			genes = append(genes, Contains{Key: vcf.AnnotationKey, Substr: "|" + g + "|"})
		}
		expr = append(expr, And{hasImpact(model.ImpactModerate), genes})
	}
	return expr
}

// Accepts applies the rule to a single annotation.
func (r ImpactRule) Accepts(a Annotation) bool {
	if r.Impact == model.ImpactSynonymous {
		return strings.Contains(a.Consequence, string(model.ImpactSynonymous))
	}

	switch model.Impact(a.Impact) {
	case model.ImpactHigh:
		return true
	case model.ImpactModerate:
		switch {
		case len(r.ExceptionGenes) == 0:
			return r.Impact != model.ImpactHigh
		case r.tightenedFor():
			return !r.genes[a.Gene]
		case r.relaxedFor():
			return r.genes[a.Gene]
		}
	}
	return false
}

func hasImpact(i model.Impact) Expr {
	return Contains{Key: vcf.AnnotationKey, Substr: "|" + string(i) + "|"}
}
