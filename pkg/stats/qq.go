package stats

import (
	"encoding/csv"
	"math"
	"os"
	"sort"
	"strconv"
)

type QQPoint struct {
	Expected float64
	Observed float64
}

// QQ pairs -log10 of the sorted p-values with -log10 of the uniform order
// statistics i/n, i = 1..n.
func QQ(pvalues []float64) []QQPoint {
	sorted := append([]float64(nil), pvalues...)
	sort.Float64s(sorted)

	n := float64(len(sorted))
	out := make([]QQPoint, len(sorted))
	for i, p := range sorted {
		out[i] = QQPoint{
			Expected: -math.Log10(float64(i+1) / n),
			Observed: -math.Log10(p),
		}
	}
	return out
}

func WriteQQ(path string, points []QQPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Write([]string{"expected", "observed"})
	for _, p := range points {
		w.Write([]string{
			strconv.FormatFloat(p.Expected, 'g', -1, 64),
			strconv.FormatFloat(p.Observed, 'g', -1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
