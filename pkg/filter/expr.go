// Package filter builds the filter expressions handed to the expression
// filter tool and implements the in-process selection of annotated records.
package filter

import (
	"strconv"
	"strings"

	"github.com/yumyai/varenrich/pkg/vcf"
)

// Expr is a boolean condition over a call record. String renders it in
// bcftools expression syntax; Match evaluates it in process.
type Expr interface {
	String() string
	Match(rec *vcf.Record) bool
}

// Contains tests an INFO value for a literal substring.
type Contains struct {
	Key    string
	Substr string
}

func (c Contains) String() string {
	return "INFO/" + c.Key + `~"` + regexLiteral(c.Substr) + `"`
}

func (c Contains) Match(rec *vcf.Record) bool {
	v, _ := rec.Info.Get(c.Key)
	return strings.Contains(v, c.Substr)
}

// Missing is true when the INFO key is absent or ".".
type Missing struct {
	Key string
}

func (m Missing) String() string {
	return "INFO/" + m.Key + `="."`
}

func (m Missing) Match(rec *vcf.Record) bool {
	_, ok := rec.Info.Get(m.Key)
	return !ok
}

type CompareOp string

const (
	Less         CompareOp = "<"
	GreaterEqual CompareOp = ">="
)

// Compare is a numeric comparison; a missing or non-numeric value never
// matches.
type Compare struct {
	Key   string
	Op    CompareOp
	Value float64
}

func (c Compare) String() string {
	return "INFO/" + c.Key + string(c.Op) + strconv.FormatFloat(c.Value, 'g', -1, 64)
}

func (c Compare) Match(rec *vcf.Record) bool {
	v, ok := rec.Info.Float(c.Key)
	if !ok {
		return false
	}
	switch c.Op {
	case Less:
		return v < c.Value
	case GreaterEqual:
		return v >= c.Value
	}
	return false
}

type Or []Expr

func (o Or) String() string { return join(o, " || ") }

func (o Or) Match(rec *vcf.Record) bool {
	for _, e := range o {
		if e.Match(rec) {
			return true
		}
	}
	return false
}

type And []Expr

func (a And) String() string { return join(a, " && ") }

func (a And) Match(rec *vcf.Record) bool {
	for _, e := range a {
		if !e.Match(rec) {
			return false
		}
	}
	return len(a) > 0
}

func join(exprs []Expr, sep string) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		s := e.String()
		switch e.(type) {
		case Or, And:
			if len(exprs) > 1 {
				s = "(" + s + ")"
			}
		}
		parts[i] = s
	}
	return strings.Join(parts, sep)
}

// regexLiteral escapes regex metacharacters with bracket classes, which
// survive both the expression parser and POSIX ERE.
func regexLiteral(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`|.*+?()[]{}^$\`, r) {
			if r == '^' || r == ']' || r == '\\' {
				b.WriteByte('\\')
				b.WriteRune(r)
				continue
			}
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteByte(']')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FrequencyExpr keeps records whose population frequency is missing or
// strictly below threshold.
func FrequencyExpr(threshold float64) Expr {
	return Or{
		Missing{Key: vcf.FrequencyKey},
		Compare{Key: vcf.FrequencyKey, Op: Less, Value: threshold},
	}
}

// ScoreExpr keeps records whose scaled score is missing or at/above cutoff.
func ScoreExpr(cutoff float64) Expr {
	return Or{
		Missing{Key: vcf.ScorePhredKey},
		Compare{Key: vcf.ScorePhredKey, Op: GreaterEqual, Value: cutoff},
	}
}

// Apply evaluates e in process and writes the matching records of in to out.
func Apply(in, out string, e Expr) (int, error) {
	return vcf.Rewrite(in, out, nil, func(rec *vcf.Record) (bool, error) {
		return e.Match(rec), nil
	})
}
