package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplesInPopulations(t *testing.T) {
	panel := "sample\tpop\tsuper_pop\tgender\n" +
		"HG00096\tGBR\tEUR\tmale\n" +
		"HG00171\tFIN\tEUR\tfemale\n" +
		"NA18525\tCHB\tEAS\tfemale\n" +
		"NA19017\tLWK\tAFR\tfemale\n"

	tests := []struct {
		name  string
		codes []string
		want  []string
	}{
		{"super population", []string{"EUR"}, []string{"HG00096", "HG00171"}},
		{"population", []string{"CHB", "LWK"}, []string{"NA18525", "NA19017"}},
		{"mixed", []string{"FIN", "EAS"}, []string{"HG00171", "NA18525"}},
		{"none", []string{"AMR"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SamplesInPopulations(strings.NewReader(panel), tt.codes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSamplesInPopulationsMalformed(t *testing.T) {
	_, err := SamplesInPopulations(strings.NewReader("HG00096\n"), []string{"EUR"})
	assert.Error(t, err)
}
