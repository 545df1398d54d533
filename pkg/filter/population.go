package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// SamplesInPopulations reads a tab-separated population panel (sample, pop,
// super_pop, ...) and returns the samples with any population column in
// codes. A leading "sample" header row is skipped.
func SamplesInPopulations(r io.Reader, codes []string) ([]string, error) {
	wanted := make(map[string]bool, len(codes))
	for _, c := range codes {
		wanted[strings.TrimSpace(c)] = true
	}

	var samples []string
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		row := strings.TrimSpace(sc.Text())
		if row == "" {
			continue
		}
		fields := strings.Split(row, "\t")
		if line == 1 && strings.EqualFold(fields[0], "sample") {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("population panel line %d: want sample and population", line)
		}
		for _, pop := range fields[1:] {
			if wanted[strings.TrimSpace(pop)] {
				samples = append(samples, fields[0])
				break
			}
		}
	}
	return samples, sc.Err()
}

func ReadPopulationPanel(path string, codes []string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return SamplesInPopulations(f, codes)
}
