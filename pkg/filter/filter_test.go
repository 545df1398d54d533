package filter

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yumyai/varenrich/pkg/model"
	"github.com/yumyai/varenrich/pkg/vcf"
)

const (
	highBRCA1     = "T|stop_gained|HIGH|BRCA1|"
	highATM       = "T|frameshift_variant|HIGH|ATM|"
	moderateBRCA1 = "T|missense_variant|MODERATE|BRCA1|"
	moderateTP53  = "T|missense_variant|MODERATE|TP53|"
	moderateATM   = "T|missense_variant|MODERATE|ATM|"
	lowATM        = "T|splice_region_variant|LOW|ATM|"
	synonymousATM = "T|synonymous_variant|LOW|ATM|"
)

func record(t *testing.T, info string) *vcf.Record {
	t.Helper()
	rec, err := vcf.ParseRecord("1\t100\t.\tA\tT\t.\tPASS\t"+info, 0)
	require.NoError(t, err)
	return rec
}

func TestImpactRuleBranches(t *testing.T) {
	exceptions := []string{"BRCA1", "TP53"}

	tests := []struct {
		name   string
		rule   ImpactRule
		accept []string
		reject []string
		// records the expression filter already drops
		dropped []string
	}{
		{
			name:    "moderate without exceptions",
			rule:    NewImpactRule(model.ImpactModerate, "", nil),
			accept:  []string{highATM, moderateATM, moderateBRCA1},
			reject:  []string{lowATM, synonymousATM},
			dropped: []string{lowATM, synonymousATM},
		},
		{
			name:    "high without exceptions",
			rule:    NewImpactRule(model.ImpactHigh, "", nil),
			accept:  []string{highATM, highBRCA1},
			reject:  []string{moderateATM, moderateBRCA1, lowATM},
			dropped: []string{moderateATM, moderateBRCA1, lowATM},
		},
		{
			name:    "moderate with high exception genes",
			rule:    NewImpactRule(model.ImpactModerate, model.ImpactHigh, exceptions),
			accept:  []string{highBRCA1, highATM, moderateATM},
			reject:  []string{moderateBRCA1, moderateTP53, lowATM},
			dropped: []string{lowATM},
		},
		{
			name:    "high with moderate exception genes",
			rule:    NewImpactRule(model.ImpactHigh, model.ImpactModerate, exceptions),
			accept:  []string{highATM, moderateBRCA1, moderateTP53},
			reject:  []string{moderateATM, lowATM},
			dropped: []string{moderateATM, lowATM},
		},
		{
			name:    "synonymous quality control",
			rule:    SynonymousRule(),
			accept:  []string{synonymousATM},
			reject:  []string{highATM, moderateTP53, lowATM},
			dropped: []string{highATM, moderateTP53, lowATM},
		},
		{
			name:    "low without exceptions",
			rule:    NewImpactRule(model.ImpactLow, "", nil),
			accept:  []string{highATM, moderateATM},
			reject:  []string{lowATM},
			dropped: []string{lowATM},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr := tt.rule.Expr()
			for _, ann := range tt.accept {
				a, err := ParseAnnotation(ann)
				require.NoError(t, err)
				assert.True(t, tt.rule.Accepts(a), "annotation %s should be accepted", ann)
				assert.True(t, expr.Match(record(t, "ANN="+ann)), "record %s should match %s", ann, expr)
			}
			for _, ann := range tt.reject {
				a, err := ParseAnnotation(ann)
				require.NoError(t, err)
				assert.False(t, tt.rule.Accepts(a), "annotation %s should be rejected", ann)
			}
			for _, ann := range tt.dropped {
				assert.False(t, expr.Match(record(t, "ANN="+ann)), "record %s should not match %s", ann, expr)
			}
		})
	}
}

// A record whose acceptable annotation shares the record with annotations
// that are rejected must reach the gene-restriction pass.
func TestImpactExprKeepsMixedRecords(t *testing.T) {
	exceptions := []string{"BRCA1", "TP53"}

	tests := []struct {
		name string
		rule ImpactRule
		anns []string
		kept string
	}{
		{
			"moderate on a regular gene next to an exception gene",
			NewImpactRule(model.ImpactModerate, model.ImpactHigh, exceptions),
			[]string{moderateATM, moderateBRCA1},
			moderateATM,
		},
		{
			"moderate on a regular gene next to both exception genes",
			NewImpactRule(model.ImpactModerate, model.ImpactHigh, exceptions),
			[]string{moderateTP53, moderateATM, moderateBRCA1},
			moderateATM,
		},
		{
			"moderate on an exception gene next to a regular gene",
			NewImpactRule(model.ImpactHigh, model.ImpactModerate, exceptions),
			[]string{moderateATM, moderateBRCA1},
			moderateBRCA1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record(t, "ANN="+strings.Join(tt.anns, ","))
			assert.True(t, tt.rule.Expr().Match(rec), "record %v should reach gene restriction", tt.anns)

			var accepted []string
			for _, ann := range tt.anns {
				a, err := ParseAnnotation(ann)
				require.NoError(t, err)
				if tt.rule.Accepts(a) {
					accepted = append(accepted, ann)
				}
			}
			assert.Equal(t, []string{tt.kept}, accepted)
		})
	}
}

func TestImpactExprString(t *testing.T) {
	exceptions := []string{"BRCA1", "TP53"}

	tests := []struct {
		name string
		rule ImpactRule
		want string
	}{
		{
			"high only",
			NewImpactRule(model.ImpactHigh, "", nil),
			`INFO/ANN~"[|]HIGH[|]"`,
		},
		{
			"moderate",
			NewImpactRule(model.ImpactModerate, "", nil),
			`INFO/ANN~"[|]HIGH[|]" || INFO/ANN~"[|]MODERATE[|]"`,
		},
		{
			"moderate, high for exceptions",
			NewImpactRule(model.ImpactModerate, model.ImpactHigh, exceptions),
			`INFO/ANN~"[|]HIGH[|]" || INFO/ANN~"[|]MODERATE[|]"`,
		},
		{
			"high, moderate for exceptions",
			NewImpactRule(model.ImpactHigh, model.ImpactModerate, exceptions),
			`INFO/ANN~"[|]HIGH[|]" || (INFO/ANN~"[|]MODERATE[|]" && (INFO/ANN~"[|]BRCA1[|]" || INFO/ANN~"[|]TP53[|]"))`,
		},
		{
			"low",
			NewImpactRule(model.ImpactLow, "", nil),
			`INFO/ANN~"[|]HIGH[|]" || INFO/ANN~"[|]MODERATE[|]"`,
		},
		{
			"synonymous",
			SynonymousRule(),
			`INFO/ANN~"synonymous_variant"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Expr().String())
		})
	}
}

func TestFrequencyExpr(t *testing.T) {
	assert.Equal(t, `INFO/GNOMAD_EXOMES_AF_ALL="." || INFO/GNOMAD_EXOMES_AF_ALL<0.001`, FrequencyExpr(0.001).String())

	thresholds := []float64{0.0001, 0.001, 0.01, 0.5}
	values := []string{"0", "0.00005", "0.0001", "0.0009", "0.001", "0.2", "0.5", "0.9"}

	for _, th := range thresholds {
		expr := FrequencyExpr(th)
		assert.True(t, expr.Match(record(t, "DP=10")), "absent AF is kept")
		assert.True(t, expr.Match(record(t, vcf.FrequencyKey+"=.")), "'.' AF is kept")
		for _, v := range values {
			a, _ := strconv.ParseFloat(v, 64)
			got := expr.Match(record(t, vcf.FrequencyKey+"="+v))
			assert.Equal(t, a < th, got, "af=%s threshold=%v", v, th)
		}
	}
}

func TestScoreExpr(t *testing.T) {
	expr := ScoreExpr(20)
	assert.True(t, expr.Match(record(t, "DP=1")))
	assert.True(t, expr.Match(record(t, vcf.ScorePhredKey+"=.")))
	assert.True(t, expr.Match(record(t, vcf.ScorePhredKey+"=20")))
	assert.True(t, expr.Match(record(t, vcf.ScorePhredKey+"=33.1")))
	assert.False(t, expr.Match(record(t, vcf.ScorePhredKey+"=19.99")))
}

func TestParseAnnotationMalformed(t *testing.T) {
	_, err := ParseAnnotation("T|missense_variant|MODERATE")
	assert.ErrorIs(t, err, ErrMalformedAnnotation)
}

func TestParseGeneTable(t *testing.T) {
	in := strings.Join([]string{
		"GENE1\tAutosomal dominant",
		"",
		"GENE2\tAutosomal recessive",
		"DMD\tX-linked recessive",
		"GENE1\tAutosomal dominant",
	}, "\n")

	gt, err := ParseGeneTable(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"GENE1", "GENE2"}, gt.Names())
	assert.False(t, gt.Has("DMD"), "X-linked genes are excluded")
	assert.True(t, gt.IsDominant("GENE1"))
	assert.False(t, gt.IsDominant("GENE2"))
}

func TestParseGeneTableErrors(t *testing.T) {
	_, err := ParseGeneTable(strings.NewReader("GENE1\n"))
	assert.True(t, errors.Is(err, ErrMalformedGeneTable))

	_, err = ParseGeneTable(strings.NewReader("GENE1\tAutosomal dominant\nGENE1\tAutosomal recessive\n"))
	assert.True(t, errors.Is(err, ErrConflictingInheritance))
}

func TestRestrictGenes(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "case.impact.vcf")
	out := filepath.Join(dir, "case.final.vcf")

	content := "##fileformat=VCFv4.2\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\n" +
		"1\t100\t.\tA\tT\t.\tPASS\tANN=" + highBRCA1 + "," + moderateATM + "\tGT\t0/1\n" +
		"1\t200\t.\tA\tT\t.\tPASS\tANN=" + moderateTP53 + "\tGT\t1/1\n" +
		"1\t300\t.\tA\tT\t.\tPASS\tANN=" + highATM + "\tGT\t0/1\n" +
		"1\t400\t.\tA\tT\t.\tPASS\tANN=" + moderateBRCA1 + "," + moderateATM + "\tGT\t0/1\n"
	require.NoError(t, os.WriteFile(in, []byte(content), 0o644))

	genes, err := ParseGeneTable(strings.NewReader("BRCA1\tAutosomal dominant\nTP53\tAutosomal dominant\nATM\tAutosomal recessive\n"))
	require.NoError(t, err)

	rule := NewImpactRule(model.ImpactModerate, model.ImpactHigh, []string{"BRCA1", "TP53"})
	kept, err := RestrictGenes(in, out, rule, genes)
	require.NoError(t, err)
	assert.Equal(t, 3, kept)

	var got [][]string
	require.NoError(t, vcf.Each(out, func(_ *vcf.Header, rec *vcf.Record) error {
		got = append(got, rec.Annotations())
		return nil
	}))
	assert.Equal(t, [][]string{{highBRCA1, moderateATM}, {highATM}, {moderateATM}}, got)

	// only ATM is of interest: the BRCA1 entry gets pruned
	genes, err = ParseGeneTable(strings.NewReader("ATM\tAutosomal recessive\n"))
	require.NoError(t, err)
	_, err = RestrictGenes(in, out, rule, genes)
	require.NoError(t, err)
	got = nil
	require.NoError(t, vcf.Each(out, func(_ *vcf.Header, rec *vcf.Record) error {
		got = append(got, rec.Annotations())
		return nil
	}))
	assert.Equal(t, [][]string{{moderateATM}, {highATM}, {moderateATM}}, got)
}

func TestRestrictGenesMalformed(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.vcf")
	content := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n" +
		"1\t100\t.\tA\tT\t.\tPASS\tANN=T|stop_gained|HIGH\n"
	require.NoError(t, os.WriteFile(in, []byte(content), 0o644))

	genes, err := ParseGeneTable(strings.NewReader("GENE1\tAutosomal dominant\n"))
	require.NoError(t, err)
	_, err = RestrictGenes(in, filepath.Join(dir, "out.vcf"), NewImpactRule(model.ImpactHigh, "", nil), genes)
	assert.ErrorIs(t, err, ErrMalformedAnnotation)
}

func TestApplyFrequency(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "case.vcf")
	out := filepath.Join(dir, "case.frequency.vcf")

	content := "##fileformat=VCFv4.2\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\n" +
		"1\t100\t.\tA\tT\t.\tPASS\t" + vcf.FrequencyKey + "=0.2\tGT\t0/1\n" +
		"1\t200\t.\tA\tT\t.\tPASS\t" + vcf.FrequencyKey + "=0.0001\tGT\t1/1\n" +
		"1\t300\t.\tA\tT\t.\tPASS\tDP=3\tGT\t0/1\n"
	require.NoError(t, os.WriteFile(in, []byte(content), 0o644))

	kept, err := Apply(in, out, FrequencyExpr(0.001))
	require.NoError(t, err)
	assert.Equal(t, 2, kept)

	var pos []int
	require.NoError(t, vcf.Each(out, func(_ *vcf.Header, rec *vcf.Record) error {
		pos = append(pos, rec.Pos)
		return nil
	}))
	assert.Equal(t, []int{200, 300}, pos)
}
