package config

import (
	"errors"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("VARENRICH_DATA", "/srv/varenrich")
	t.Setenv("VARENRICH_DB_DRIVER", "")
	t.Setenv("VARENRICH_DB_DSN", "")
	t.Setenv("VARENRICH_CADD_URL", "https://cadd.example.org/")
	t.Setenv("VARENRICH_CADD_RETRY_SECONDS", "60")

	cfg := FromEnv()

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, path.Join("/srv/varenrich", "db", "varenrich.db"), cfg.DBDSN)
	assert.Equal(t, "https://cadd.example.org", cfg.CaddURL)
	assert.Equal(t, time.Minute, cfg.CaddRetry)
	assert.Equal(t, "/srv/varenrich/projects", cfg.ProjectsDir())
}

func TestFromEnvPostgresKeepsDSN(t *testing.T) {
	t.Setenv("VARENRICH_DB_DRIVER", "Postgres")
	t.Setenv("VARENRICH_DB_DSN", "postgres://localhost/varenrich?sslmode=disable")
	t.Setenv("VARENRICH_CADD_RETRY_SECONDS", "not-a-number")

	cfg := FromEnv()

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres://localhost/varenrich?sslmode=disable", cfg.DBDSN)
	assert.Equal(t, 900*time.Second, cfg.CaddRetry)
}

func TestCheckAnnotationRefs(t *testing.T) {
	cfg := &Config{ReferenceFasta: "hs37d5.fa"}

	err := cfg.CheckAnnotationRefs()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingAnnotationRefs))
	assert.Contains(t, err.Error(), "VARENRICH_GNOMAD_VCF")
	assert.NotContains(t, err.Error(), "VARENRICH_REFERENCE_FASTA")

	cfg.GnomadVCF = "gnomad.exomes.vcf.gz"
	cfg.TranscriptDB = "refseq_105_hg19.ser"
	assert.NoError(t, cfg.CheckAnnotationRefs())
}
