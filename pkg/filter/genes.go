package filter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yumyai/varenrich/pkg/vcf"
)

var (
	ErrMalformedGeneTable     = errors.New("malformed gene table")
	ErrConflictingInheritance = errors.New("conflicting inheritance modes")
)

// AutosomalDominant is the only mode under which heterozygous calls count.
const AutosomalDominant = "Autosomal dominant"

// GeneTable maps gene names to their inheritance mode. X-linked genes are
// never part of the table.
type GeneTable struct {
	modes map[string]string
	names []string
}

func ReadGeneTable(path string) (*GeneTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gt, err := ParseGeneTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return gt, nil
}

// ParseGeneTable reads tab-separated "gene<TAB>mode" rows. A gene listed twice
// with the same mode is accepted; with different modes it is an error.
func ParseGeneTable(r io.Reader) (*GeneTable, error) {
	gt := &GeneTable{modes: make(map[string]string)}
	seen := make(map[string]string)

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		row := strings.TrimSpace(sc.Text())
		if row == "" {
			continue
		}
		fields := strings.Split(row, "\t")
		if len(fields) < 2 || strings.TrimSpace(fields[0]) == "" {
			return nil, fmt.Errorf("%w: line %d: want gene and inheritance mode", ErrMalformedGeneTable, line)
		}
		gene := strings.TrimSpace(fields[0])
		mode := strings.TrimSpace(fields[1])

		if prev, ok := seen[gene]; ok {
			if prev != mode {
				return nil, fmt.Errorf("%w: line %d: %s is %q and %q", ErrConflictingInheritance, line, gene, prev, mode)
			}
			continue
		}
		seen[gene] = mode

		if isXLinked(mode) {
			continue
		}
		gt.modes[gene] = mode
		gt.names = append(gt.names, gene)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return gt, nil
}

func isXLinked(mode string) bool {
	return strings.HasPrefix(strings.ToUpper(mode), "X")
}

// Names returns the genes in file order.
func (g *GeneTable) Names() []string {
	return g.names
}

func (g *GeneTable) Len() int {
	return len(g.names)
}

func (g *GeneTable) Has(gene string) bool {
	_, ok := g.modes[gene]
	return ok
}

func (g *GeneTable) Mode(gene string) (string, bool) {
	m, ok := g.modes[gene]
	return m, ok
}

func (g *GeneTable) IsDominant(gene string) bool {
	return g.modes[gene] == AutosomalDominant
}

// RestrictGenes keeps the records of in that carry at least one annotation
// accepted by rule on a gene of genes. Kept records have their annotation
// list pruned to the accepted entries.
func RestrictGenes(in, out string, rule ImpactRule, genes *GeneTable) (int, error) {
	return vcf.Rewrite(in, out, nil, func(rec *vcf.Record) (bool, error) {
		kept, err := interesting(rec.Annotations(), rule, genes)
		if err != nil {
			return false, err
		}
		rec.SetAnnotations(kept)
		return len(kept) > 0, nil
	})
}

func interesting(anns []string, rule ImpactRule, genes *GeneTable) ([]string, error) {
	var kept []string
	for _, raw := range anns {
		a, err := ParseAnnotation(raw)
		if err != nil {
			return nil, err
		}
		if rule.Accepts(a) && genes.Has(a.Gene) {
			kept = append(kept, raw)
		}
	}
	return kept, nil
}

// AnnotatedGenes returns the distinct gene names among a record's
// annotations, in first-seen order.
func AnnotatedGenes(rec *vcf.Record) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range rec.Annotations() {
		a, err := ParseAnnotation(raw)
		if err != nil {
			return nil, err
		}
		if !seen[a.Gene] {
			seen[a.Gene] = true
			out = append(out, a.Gene)
		}
	}
	return out, nil
}
