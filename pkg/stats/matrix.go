// Package stats counts qualifying variants per gene and sample and computes
// per-gene case/control enrichment.
package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/yumyai/varenrich/pkg/filter"
	"github.com/yumyai/varenrich/pkg/vcf"
)

// Matrix is a gene x sample table of counts.
type Matrix struct {
	Genes   []string
	Samples []string
	Values  [][]int
	index   map[string]int
}

func NewMatrix(genes, samples []string) *Matrix {
	m := &Matrix{
		Genes:   genes,
		Samples: samples,
		Values:  make([][]int, len(genes)),
		index:   make(map[string]int, len(genes)),
	}
	for i, g := range genes {
		m.index[g] = i
		m.Values[i] = make([]int, len(samples))
	}
	return m
}

// Row returns the counts of gene, or nil if the gene is not in the matrix.
func (m *Matrix) Row(gene string) []int {
	i, ok := m.index[gene]
	if !ok {
		return nil
	}
	return m.Values[i]
}

func (m *Matrix) add(gene string, sample int) {
	if row := m.Row(gene); row != nil {
		row[sample]++
	}
}

// Collapse returns a 0/1 copy: 1 where the count is positive.
func (m *Matrix) Collapse() *Matrix {
	out := NewMatrix(m.Genes, m.Samples)
	for i, row := range m.Values {
		for j, v := range row {
			if v > 0 {
				out.Values[i][j] = 1
			}
		}
	}
	return out
}

// Positives is the number of samples with a positive count for gene.
func (m *Matrix) Positives(gene string) int {
	n := 0
	for _, v := range m.Row(gene) {
		if v > 0 {
			n++
		}
	}
	return n
}

// Count builds the raw count matrix of a filtered call file. A record shared
// by several genes is counted once for each of them. Heterozygous calls only
// count for dominantly inherited genes.
func Count(path string, genes *filter.GeneTable) (*Matrix, error) {
	h, err := vcf.ReadHeader(path)
	if err != nil {
		return nil, err
	}
	m := NewMatrix(genes.Names(), h.Samples())

	err = vcf.Each(path, func(_ *vcf.Header, rec *vcf.Record) error {
		names, err := filter.AnnotatedGenes(rec)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", rec.Chrom, rec.Pos, err)
		}
		for _, gene := range names {
			if !genes.Has(gene) {
				continue
			}
			for i := range m.Samples {
				gt := rec.Genotype(i)
				if !gt.IsVariant() {
					continue
				}
				if gt.IsHet() && !genes.IsDominant(gene) {
					continue
				}
				m.add(gene, i)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// WriteCSV writes the matrix with a leading unnamed gene column.
func (m *Matrix) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	w.Write(append([]string{""}, m.Samples...))
	for i, gene := range m.Genes {
		row := make([]string, 0, len(m.Samples)+1)
		row = append(row, gene)
		for _, v := range m.Values[i] {
			row = append(row, strconv.Itoa(v))
		}
		w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
