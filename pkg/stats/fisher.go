package stats

import (
	"encoding/csv"
	"math"
	"os"
	"sort"
	"strconv"
)

// Relative tolerance when comparing table probabilities, so that tables as
// likely as the observed one are not lost to rounding.
const fisherTolerance = 1 + 1e-7

// FisherExact returns the two-sided p-value of the 2x2 table [[a, b], [c, d]].
func FisherExact(a, b, c, d int) float64 {
	n := a + b + c + d
	if n == 0 {
		return 1
	}
	row1 := a + b
	col1 := a + c

	lo := max(0, col1-(n-row1))
	hi := min(row1, col1)

	denom := lchoose(n, col1)
	prob := func(x int) float64 {
		return math.Exp(lchoose(row1, x) + lchoose(n-row1, col1-x) - denom)
	}

	observed := prob(a) * fisherTolerance
	p := 0.0
	for x := lo; x <= hi; x++ {
		if px := prob(x); px <= observed {
			p += px
		}
	}
	return math.Min(p, 1)
}

func lchoose(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(k + 1))
	c, _ := math.Lgamma(float64(n - k + 1))
	return a - b - c
}

// GeneStat is the contingency table and p-value of one gene.
type GeneStat struct {
	Gene            string
	CasePositive    int
	CaseNegative    int
	ControlPositive int
	ControlNegative int
	PValue          float64
}

// Enrichment compares collapsed case and control matrices gene by gene and
// returns the results sorted by ascending p-value. Genes keep matrix order
// on ties.
func Enrichment(caseCollapsed, controlCollapsed *Matrix) []GeneStat {
	out := make([]GeneStat, 0, len(caseCollapsed.Genes))
	nCase := len(caseCollapsed.Samples)
	nControl := len(controlCollapsed.Samples)

	for _, gene := range caseCollapsed.Genes {
		s := GeneStat{
			Gene:            gene,
			CasePositive:    caseCollapsed.Positives(gene),
			ControlPositive: controlCollapsed.Positives(gene),
		}
		s.CaseNegative = nCase - s.CasePositive
		s.ControlNegative = nControl - s.ControlPositive
		s.PValue = FisherExact(s.CasePositive, s.CaseNegative, s.ControlPositive, s.ControlNegative)
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].PValue < out[j].PValue })
	return out
}

func PValues(stats []GeneStat) []float64 {
	out := make([]float64, len(stats))
	for i, s := range stats {
		out[i] = s.PValue
	}
	return out
}

func WriteStats(path string, stats []GeneStat) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Write([]string{"gene", "case_positive", "case_negative", "control_positive", "control_negative", "p_value"})
	for _, s := range stats {
		w.Write([]string{
			s.Gene,
			strconv.Itoa(s.CasePositive),
			strconv.Itoa(s.CaseNegative),
			strconv.Itoa(s.ControlPositive),
			strconv.Itoa(s.ControlNegative),
			strconv.FormatFloat(s.PValue, 'g', -1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
