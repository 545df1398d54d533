package vcf

import (
	"strconv"
	"strings"
)

type Zygosity string

const (
	Uncalled            Zygosity = ""
	HomozygousReference Zygosity = "HOMOZYGOUS_REFERENCE"
	Heterozygous        Zygosity = "HETEROZYGOUS"
	HomozygousAlternate Zygosity = "HOMOZYGOUS_ALTERNATE"
)

// Genotype is a parsed GT value. Missing alleles are -1.
type Genotype struct {
	Alleles []int
	Phased  bool
}

func ParseGenotype(s string) Genotype {
	var g Genotype
	if s == "" || s == Missing {
		return g
	}
	g.Phased = strings.Contains(s, "|")
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '|' })
	g.Alleles = make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			n = -1
		}
		g.Alleles[i] = n
	}
	return g
}

// Zygosity classifies the called alleles; missing alleles are ignored.
func (g Genotype) Zygosity() Zygosity {
	first := -1
	het := false
	for _, a := range g.Alleles {
		if a < 0 {
			continue
		}
		if first < 0 {
			first = a
			continue
		}
		if a != first {
			het = true
		}
	}
	switch {
	case first < 0:
		return Uncalled
	case het:
		return Heterozygous
	case first == 0:
		return HomozygousReference
	default:
		return HomozygousAlternate
	}
}

// IsVariant reports whether any called allele is non-reference.
func (g Genotype) IsVariant() bool {
	for _, a := range g.Alleles {
		if a > 0 {
			return true
		}
	}
	return false
}

func (g Genotype) IsHet() bool {
	return g.Zygosity() == Heterozygous
}
