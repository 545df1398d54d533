package vcf

import (
	"errors"
	"fmt"
	"io"
)

// RecordFunc edits a record in place and reports whether to keep it.
type RecordFunc func(rec *Record) (keep bool, err error)

// Rewrite streams the records of in through fn into a new plain file at out.
// editHeader, if not nil, runs once before the header is written.
// It returns the number of records written.
func Rewrite(in, out string, editHeader func(*Header), fn RecordFunc) (int, error) {
	rd, err := Open(in)
	if err != nil {
		return 0, err
	}
	defer rd.Close()

	if editHeader != nil {
		editHeader(rd.Header)
	}

	w, err := Create(out, rd.Header)
	if err != nil {
		return 0, err
	}

	kept := 0
	for {
		rec, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			w.Close()
			return kept, fmt.Errorf("%s: %w", in, err)
		}
		keep, err := fn(rec)
		if err != nil {
			w.Close()
			return kept, fmt.Errorf("%s: %s:%d: %w", in, rec.Chrom, rec.Pos, err)
		}
		if !keep {
			continue
		}
		if err := w.Write(rec); err != nil {
			w.Close()
			return kept, err
		}
		kept++
	}
	return kept, w.Close()
}

// Each calls fn for every record of path, stopping at the first error.
func Each(path string, fn func(h *Header, rec *Record) error) error {
	rd, err := Open(path)
	if err != nil {
		return err
	}
	defer rd.Close()

	for {
		rec, err := rd.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := fn(rd.Header, rec); err != nil {
			return err
		}
	}
}

// ReadHeader returns only the header of path.
func ReadHeader(path string) (*Header, error) {
	rd, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	return rd.Header, nil
}
