package vcf

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Header holds the meta lines ("##...") and the column line ("#CHROM...").
type Header struct {
	Meta    []string
	Columns []string
}

func (h *Header) Samples() []string {
	if len(h.Columns) <= fixedColumns+1 {
		return nil
	}
	return h.Columns[fixedColumns+1:]
}

func (h *Header) HasInfo(id string) bool {
	prefix := "##INFO=<ID=" + id + ","
	for _, m := range h.Meta {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

// AddInfo declares an INFO key unless it is already declared.
func (h *Header) AddInfo(id, number, typ, description string) {
	if h.HasInfo(id) {
		return
	}
	h.Meta = append(h.Meta, fmt.Sprintf("##INFO=<ID=%s,Number=%s,Type=%s,Description=\"%s\">",
		id, number, typ, description))
}

func (h *Header) write(w io.Writer) error {
	for _, m := range h.Meta {
		if _, err := io.WriteString(w, m+"\n"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, strings.Join(h.Columns, "\t")+"\n")
	return err
}

// Reader streams records from plain or gzip/bgzip compressed input.
type Reader struct {
	Header  *Header
	r       *bufio.Reader
	closer  io.Closer
	line    int
	samples int
}

// Open opens a call file on disk; compression is detected from the content.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rd.closer = multiCloser{rd.closer, f}
	return rd, nil
}

func NewReader(in io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(in, 1<<16)
	rd := &Reader{}

	magic, err := br.Peek(2)
	if err == nil && bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		// bgzip output is a series of gzip members, which gzip.Reader
		// concatenates by default.
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		rd.closer = gz
		br = bufio.NewReaderSize(gz, 1<<16)
	}
	rd.r = br

	h := &Header{}
	for {
		line, err := rd.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: missing #CHROM header line", ErrMalformedRecord)
			}
			return nil, err
		}
		if strings.HasPrefix(line, "##") {
			h.Meta = append(h.Meta, line)
			continue
		}
		if strings.HasPrefix(line, "#CHROM") {
			h.Columns = strings.Split(line, "\t")
			break
		}
		return nil, fmt.Errorf("%w: line %d: expected header", ErrMalformedRecord, rd.line)
	}
	rd.Header = h
	rd.samples = len(h.Samples())
	return rd, nil
}

func (rd *Reader) readLine() (string, error) {
	line, err := rd.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	rd.line++
	return strings.TrimRight(line, "\r\n"), nil
}

// Read returns the next record or io.EOF.
func (rd *Reader) Read() (*Record, error) {
	for {
		line, err := rd.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			continue
		}
		rec, err := ParseRecord(line, rd.samples)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", rd.line, err)
		}
		return rec, nil
	}
}

func (rd *Reader) Close() error {
	if rd.closer == nil {
		return nil
	}
	return rd.closer.Close()
}

// Writer writes a plain (uncompressed) call file.
type Writer struct {
	w      *bufio.Writer
	closer io.Closer
}

func NewWriter(out io.Writer, h *Header) (*Writer, error) {
	w := &Writer{w: bufio.NewWriter(out)}
	if err := h.write(w.w); err != nil {
		return nil, err
	}
	return w, nil
}

// Create creates path and writes the header.
func Create(path string, h *Header) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, h)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

func (w *Writer) Write(rec *Record) error {
	if _, err := w.w.WriteString(rec.String()); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Close flushes buffered records and closes the underlying file, if any.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		if w.closer != nil {
			w.closer.Close()
		}
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
