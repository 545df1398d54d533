// Package vcf is a small explicit-schema codec for variant call files. It
// only understands what the enrichment pipeline needs: the fixed columns,
// INFO key/values, and the GT sample field.
package vcf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedRecord = errors.New("malformed call record")

const (
	// AnnotationKey is the INFO key of the functional annotation list.
	AnnotationKey = "ANN"
	// FrequencyKey is the INFO key of the population allele frequency.
	FrequencyKey = "GNOMAD_EXOMES_AF_ALL"
	// Keys written when scoring service results are merged in.
	ScoreRawKey   = "CADD_RAW"
	ScorePhredKey = "CADD_PHRED"

	Missing = "."

	fixedColumns = 8
)

// InfoField is one INFO entry. Flags carry no value.
type InfoField struct {
	Key   string
	Value string
	Flag  bool
}

// Info keeps INFO entries in file order.
type Info []InfoField

func parseInfo(s string) Info {
	if s == "" || s == Missing {
		return nil
	}
	parts := strings.Split(s, ";")
	info := make(Info, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		k, v, ok := strings.Cut(p, "=")
		info = append(info, InfoField{Key: k, Value: v, Flag: !ok})
	}
	return info
}

func (in Info) String() string {
	if len(in) == 0 {
		return Missing
	}
	var b strings.Builder
	for i, f := range in {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(f.Key)
		if !f.Flag {
			b.WriteByte('=')
			b.WriteString(f.Value)
		}
	}
	return b.String()
}

// Get returns the raw value of key. A present key with value "." counts as
// missing.
func (in Info) Get(key string) (string, bool) {
	for _, f := range in {
		if f.Key == key {
			if f.Value == Missing {
				return "", false
			}
			return f.Value, true
		}
	}
	return "", false
}

func (in *Info) Set(key, value string) {
	for i := range *in {
		if (*in)[i].Key == key {
			(*in)[i].Value = value
			(*in)[i].Flag = false
			return
		}
	}
	*in = append(*in, InfoField{Key: key, Value: value})
}

func (in *Info) Delete(key string) {
	out := (*in)[:0]
	for _, f := range *in {
		if f.Key != key {
			out = append(out, f)
		}
	}
	*in = out
}

// Float returns the first numeric value of key. ok is false when the key is
// absent, ".", or not a number.
func (in Info) Float(key string) (float64, bool) {
	v, ok := in.Get(key)
	if !ok {
		return 0, false
	}
	first, _, _ := strings.Cut(v, ",")
	f, err := strconv.ParseFloat(first, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Record is one data line.
type Record struct {
	Chrom  string
	Pos    int
	ID     string
	Ref    string
	Alt    string
	Qual   string
	Filter string
	Info   Info
	Format []string
	// Samples holds the colon-separated fields of each sample column.
	Samples [][]string
}

// ParseRecord parses a tab-separated data line. nSamples is the number of
// sample columns announced by the header; a mismatch is malformed.
func ParseRecord(line string, nSamples int) (*Record, error) {
	cols := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(cols) < fixedColumns {
		return nil, fmt.Errorf("%w: %d columns", ErrMalformedRecord, len(cols))
	}
	pos, err := strconv.Atoi(cols[1])
	if err != nil {
		return nil, fmt.Errorf("%w: position %q", ErrMalformedRecord, cols[1])
	}

	rec := &Record{
		Chrom:  cols[0],
		Pos:    pos,
		ID:     cols[2],
		Ref:    cols[3],
		Alt:    cols[4],
		Qual:   cols[5],
		Filter: cols[6],
		Info:   parseInfo(cols[7]),
	}

	if nSamples == 0 {
		return rec, nil
	}
	if len(cols) != fixedColumns+1+nSamples {
		return nil, fmt.Errorf("%w: %s:%d has %d sample columns, header has %d",
			ErrMalformedRecord, rec.Chrom, rec.Pos, len(cols)-fixedColumns-1, nSamples)
	}
	rec.Format = strings.Split(cols[8], ":")
	rec.Samples = make([][]string, nSamples)
	for i := 0; i < nSamples; i++ {
		rec.Samples[i] = strings.Split(cols[fixedColumns+1+i], ":")
	}
	return rec, nil
}

func (r *Record) String() string {
	var b strings.Builder
	b.WriteString(r.Chrom)
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(r.Pos))
	for _, s := range []string{r.ID, r.Ref, r.Alt, r.Qual, r.Filter, r.Info.String()} {
		b.WriteByte('\t')
		b.WriteString(s)
	}
	if len(r.Samples) > 0 {
		b.WriteByte('\t')
		b.WriteString(strings.Join(r.Format, ":"))
		for _, s := range r.Samples {
			b.WriteByte('\t')
			b.WriteString(strings.Join(s, ":"))
		}
	}
	return b.String()
}

// Annotations returns the comma-separated entries of the ANN field.
func (r *Record) Annotations() []string {
	v, ok := r.Info.Get(AnnotationKey)
	if !ok || v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

// SetAnnotations replaces the ANN field; an empty list removes it.
func (r *Record) SetAnnotations(anns []string) {
	if len(anns) == 0 {
		r.Info.Delete(AnnotationKey)
		return
	}
	r.Info.Set(AnnotationKey, strings.Join(anns, ","))
}

// Genotype returns the GT call of sample i. Records without a GT field yield
// an uncalled genotype.
func (r *Record) Genotype(i int) Genotype {
	idx := -1
	for j, k := range r.Format {
		if k == "GT" {
			idx = j
			break
		}
	}
	if idx < 0 || i < 0 || i >= len(r.Samples) || idx >= len(r.Samples[i]) {
		return Genotype{}
	}
	return ParseGenotype(r.Samples[i][idx])
}
