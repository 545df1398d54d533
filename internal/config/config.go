// Package config reads process configuration from a .env file (if present)
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir  string
	Listen   string
	LogLevel string

	DBDriver string // "sqlite" or "postgres"
	DBDSN    string

	// Annotation references, required by the assemble stage.
	ReferenceFasta string
	GnomadVCF      string
	TranscriptDB   string
	Jannovar       string

	CaddURL     string
	CaddVersion string
	CaddRetry   time.Duration

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool

	// Default reference cohort, registered on startup when both are set.
	IGSRVCF   string
	IGSRPanel string
}

var ErrMissingAnnotationRefs = errors.New("annotation references are not configured")

// Load reads .env (ignored when missing) and then the process environment.
// The returned bool reports whether a .env file was loaded.
func Load() (*Config, bool) {
	loaded := godotenv.Load() == nil
	return FromEnv(), loaded
}

// FromEnv builds a Config from the environment only.
func FromEnv() *Config {
	data := getenv("VARENRICH_DATA", "./data")

	cfg := &Config{
		DataDir:  data,
		Listen:   getenv("VARENRICH_LISTEN", "0.0.0.0:8080"),
		LogLevel: getenv("VARENRICH_LOG_LEVEL", "info"),

		DBDriver: strings.ToLower(getenv("VARENRICH_DB_DRIVER", "sqlite")),
		DBDSN:    os.Getenv("VARENRICH_DB_DSN"),

		ReferenceFasta: os.Getenv("VARENRICH_REFERENCE_FASTA"),
		GnomadVCF:      os.Getenv("VARENRICH_GNOMAD_VCF"),
		TranscriptDB:   os.Getenv("VARENRICH_TRANSCRIPT_DB"),
		Jannovar:       getenv("VARENRICH_JANNOVAR", "jannovar"),

		CaddURL:     strings.TrimRight(getenv("VARENRICH_CADD_URL", "https://cadd.gs.washington.edu"), "/"),
		CaddVersion: getenv("VARENRICH_CADD_VERSION", "GRCh37-v1.6"),
		CaddRetry:   time.Duration(getint("VARENRICH_CADD_RETRY_SECONDS", 900)) * time.Second,

		S3Bucket:    os.Getenv("VARENRICH_S3_BUCKET"),
		S3Region:    getenv("VARENRICH_S3_REGION", "us-east-1"),
		S3Endpoint:  os.Getenv("VARENRICH_S3_ENDPOINT"),
		S3PathStyle: strings.EqualFold(os.Getenv("VARENRICH_S3_PATH_STYLE"), "true"),

		IGSRVCF:   os.Getenv("VARENRICH_IGSR_VCF"),
		IGSRPanel: os.Getenv("VARENRICH_IGSR_PANEL"),
	}

	if cfg.DBDSN == "" && cfg.DBDriver == "sqlite" {
		cfg.DBDSN = path.Join(data, "db", "varenrich.db")
	}
	return cfg
}

// ProjectsDir is the root of all per-project scratch directories.
func (c *Config) ProjectsDir() string {
	return path.Join(c.DataDir, "projects")
}

// CheckAnnotationRefs reports which annotation references are missing.
func (c *Config) CheckAnnotationRefs() error {
	var missing []string
	if c.ReferenceFasta == "" {
		missing = append(missing, "VARENRICH_REFERENCE_FASTA")
	}
	if c.GnomadVCF == "" {
		missing = append(missing, "VARENRICH_GNOMAD_VCF")
	}
	if c.TranscriptDB == "" {
		missing = append(missing, "VARENRICH_TRANSCRIPT_DB")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingAnnotationRefs, strings.Join(missing, ", "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
