package scoring

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/yumyai/varenrich/pkg/vcf"
)

var ErrMalformedScoreRow = errors.New("malformed score row")

// ScoreRow is one line of a result table.
type ScoreRow struct {
	Chrom string
	Pos   int
	Raw   string
	Phred string
}

// ReadScores reads a (optionally gzipped) result table: one comment row,
// then a column header row naming at least #Chrom, Pos, RawScore and PHRED.
func ReadScores(path string) ([]ScoreRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := ParseScores(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

func ParseScores(in io.Reader) ([]ScoreRow, error) {
	br := bufio.NewReader(in)
	if magic, err := br.Peek(2); err == nil && bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		br = bufio.NewReader(gz)
	}

	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	cols := map[string]int{}
	var rows []ScoreRow
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if strings.HasPrefix(text, "#") {
			if fields[0] == "#Chrom" {
				for i, name := range fields {
					cols[name] = i
				}
			}
			continue
		}
		if len(cols) == 0 {
			return nil, fmt.Errorf("%w: line %d before column header", ErrMalformedScoreRow, line)
		}
		row, err := scoreRow(fields, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}

func scoreRow(fields []string, cols map[string]int) (ScoreRow, error) {
	get := func(name string) (string, error) {
		i, ok := cols[name]
		if !ok {
			return "", fmt.Errorf("%w: no %s column", ErrMalformedScoreRow, name)
		}
		if i >= len(fields) {
			return "", fmt.Errorf("%w: %d fields, %s is column %d", ErrMalformedScoreRow, len(fields), name, i+1)
		}
		return fields[i], nil
	}

	var row ScoreRow
	var err error
	if row.Chrom, err = get("#Chrom"); err != nil {
		return row, err
	}
	pos, err := get("Pos")
	if err != nil {
		return row, err
	}
	if row.Pos, err = strconv.Atoi(pos); err != nil {
		return row, fmt.Errorf("%w: position %q", ErrMalformedScoreRow, pos)
	}
	if row.Raw, err = get("RawScore"); err != nil {
		return row, err
	}
	if row.Phred, err = get("PHRED"); err != nil {
		return row, err
	}
	return row, nil
}

// Join looks score rows up by position with a circular cursor. The cursor
// stays on the last match, so files in (nearly) the same coordinate order
// are joined in linear total time. A lookup that wraps all the way around
// without a match leaves the cursor where it was.
type Join struct {
	rows   []ScoreRow
	cursor int
}

func NewJoin(rows []ScoreRow) *Join {
	return &Join{rows: rows}
}

func (j *Join) Find(chrom string, pos int) (ScoreRow, bool) {
	n := len(j.rows)
	chrom = normChrom(chrom)
	for step := 0; step < n; step++ {
		i := (j.cursor + step) % n
		if j.rows[i].Pos == pos && normChrom(j.rows[i].Chrom) == chrom {
			j.cursor = i
			return j.rows[i], true
		}
	}
	return ScoreRow{}, false
}

// The scoring service reports chromosomes without the "chr" prefix.
func normChrom(c string) string {
	return strings.TrimPrefix(c, "chr")
}

// Merge writes in to out with the raw and scaled scores added to each
// record's INFO; records without a score row get ".". It returns the number
// of records that found no score.
func Merge(rows []ScoreRow, in, out string) (missing int, err error) {
	join := NewJoin(rows)

	_, err = vcf.Rewrite(in, out,
		func(h *vcf.Header) {
			h.AddInfo(vcf.ScoreRawKey, "1", "Float", "Raw deleteriousness score")
			h.AddInfo(vcf.ScorePhredKey, "1", "Float", "Scaled (PHRED-like) deleteriousness score")
		},
		func(rec *vcf.Record) (bool, error) {
			row, ok := join.Find(rec.Chrom, rec.Pos)
			if !ok {
				missing++
				rec.Info.Set(vcf.ScoreRawKey, vcf.Missing)
				rec.Info.Set(vcf.ScorePhredKey, vcf.Missing)
				return true, nil
			}
			rec.Info.Set(vcf.ScoreRawKey, row.Raw)
			rec.Info.Set(vcf.ScorePhredKey, row.Phred)
			return true, nil
		})
	return missing, err
}
