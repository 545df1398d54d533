// Package tools wraps the external command-line programs the pipeline relies
// on: bcftools, tabix, bgzip and the jannovar annotator.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/yumyai/varenrich/logger"
	"go.uber.org/zap"
)

// Adapter is the contract the pipeline stages use. Every method writes its
// result to out and returns the path it wrote.
type Adapter interface {
	MergeAndIndex(ctx context.Context, files []string, out string) (string, error)
	SortNormalize(ctx context.Context, in, out string) (string, error)
	Annotate(ctx context.Context, in string, refs AnnotationRefs, out string) (string, error)
	RegionFilter(ctx context.Context, in, regions, out string) (string, error)
	ExpressionFilter(ctx context.Context, in, expr, out string) (string, error)
	PopulationSubset(ctx context.Context, in string, samples []string, out string) (string, error)
}

// AnnotationRefs are the fixed references of the annotation step.
type AnnotationRefs struct {
	ReferenceFasta string
	GnomadVCF      string
	TranscriptDB   string
}

// CommandError is returned when a tool exits with a non-zero status.
type CommandError struct {
	Tool   string
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v - %s", e.Tool, strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Output))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Exec runs the real binaries found on PATH (or at the configured paths).
type Exec struct {
	Bcftools string
	Tabix    string
	Bgzip    string
	Jannovar string
}

var _ Adapter = (*Exec)(nil)

func NewExec(jannovar string) *Exec {
	if jannovar == "" {
		jannovar = "jannovar"
	}
	return &Exec{
		Bcftools: "bcftools",
		Tabix:    "tabix",
		Bgzip:    "bgzip",
		Jannovar: jannovar,
	}
}

func (x *Exec) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	logger.Debug("Run tool", zap.String("tool", name), zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &CommandError{Tool: name, Args: args, Output: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

func (x *Exec) index(ctx context.Context, file string) error {
	_, err := x.run(ctx, x.Tabix, "-f", "-p", "vcf", file)
	return err
}

// MergeAndIndex indexes each input and merges them into one multi-sample
// file. Missing genotypes are written as reference.
func (x *Exec) MergeAndIndex(ctx context.Context, files []string, out string) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("merge: no input files")
	}

	var list bytes.Buffer
	for _, f := range files {
		if err := x.index(ctx, f); err != nil {
			return "", err
		}
		list.WriteString(f)
		list.WriteString("\n")
	}

	listFile := out + ".list"
	if err := os.WriteFile(listFile, list.Bytes(), 0o644); err != nil {
		return "", err
	}
	defer os.Remove(listFile)

	if _, err := x.run(ctx, x.Bcftools, "merge", "-0", "-l", listFile, "-m", "none", "-o", out); err != nil {
		return "", err
	}
	return out, nil
}

// SortNormalize sorts in, drops duplicate records ("-d none": no two records
// may share a position), then compresses and indexes the result. out must
// end in .vcf.gz.
func (x *Exec) SortNormalize(ctx context.Context, in, out string) (string, error) {
	plain := strings.TrimSuffix(out, ".gz")
	sorted := plain + ".sorted"

	if _, err := x.run(ctx, x.Bcftools, "sort", "-o", sorted, in); err != nil {
		return "", err
	}
	defer os.Remove(sorted)

	if _, err := x.run(ctx, x.Bcftools, "norm", "-d", "none", "-o", plain, sorted); err != nil {
		return "", err
	}
	if _, err := x.run(ctx, x.Bgzip, "-f", plain); err != nil {
		return "", err
	}
	if err := x.index(ctx, plain+".gz"); err != nil {
		return "", err
	}
	return plain + ".gz", nil
}

func (x *Exec) Annotate(ctx context.Context, in string, refs AnnotationRefs, out string) (string, error) {
	args := []string{
		"annotate-vcf",
		"--show-all",
		"--ref-fasta", refs.ReferenceFasta,
		"--gnomad-exomes-vcf", refs.GnomadVCF,
		"-d", refs.TranscriptDB,
		"-i", in,
		"-o", out,
	}
	if _, err := x.run(ctx, x.Jannovar, args...); err != nil {
		return "", err
	}
	if err := x.index(ctx, out); err != nil {
		return "", err
	}
	return out, nil
}

// RegionFilter keeps the records of in overlapping the regions file. The
// header is carried over; the body is re-sorted since overlapping regions
// may report a record twice.
func (x *Exec) RegionFilter(ctx context.Context, in, regions, out string) (string, error) {
	header, err := x.run(ctx, x.Tabix, "-H", in)
	if err != nil {
		return "", err
	}
	body, err := x.run(ctx, x.Tabix, "-R", regions, in)
	if err != nil {
		return "", err
	}

	tmp := strings.TrimSuffix(out, ".gz") + ".regions"
	if err := os.WriteFile(tmp, append(header, body...), 0o644); err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	return x.SortNormalize(ctx, tmp, out)
}

func (x *Exec) ExpressionFilter(ctx context.Context, in, expr, out string) (string, error) {
	if _, err := x.run(ctx, x.Bcftools, "filter", "-i", expr, "-o", out, in); err != nil {
		return "", err
	}
	return out, nil
}

// PopulationSubset keeps the given samples and drops sites left without any
// non-reference call.
func (x *Exec) PopulationSubset(ctx context.Context, in string, samples []string, out string) (string, error) {
	samplesFile := out + ".samples"
	if err := os.WriteFile(samplesFile, []byte(strings.Join(samples, "\n")+"\n"), 0o644); err != nil {
		return "", err
	}
	defer os.Remove(samplesFile)

	if _, err := x.run(ctx, x.Bcftools, "view", "-S", samplesFile, "--force-samples", "-c", "1", "-o", out, in); err != nil {
		return "", err
	}
	return out, nil
}
