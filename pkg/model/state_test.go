package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestAdvance(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		wantErr bool
	}{
		{"assemble starts", StateInitial, StateAnnotating, false},
		{"assemble finishes", StateAnnotating, StateAnnotated, false},
		{"prefilter", StateAnnotated, StateFiltering, false},
		{"filters applied", StateFiltering, StateFiltering, false},
		{"no scoring", StateFiltering, StateAnalyzing, false},
		{"scoring submitted", StateFiltering, StateCaddWaiting, false},
		{"poll", StateCaddWaiting, StateCaddChecking, false},
		{"not ready", StateCaddChecking, StateCaddWaiting, false},
		{"both failed", StateCaddChecking, StateCaddError, false},
		{"downloaded", StateCaddChecking, StateCaddFiltering, false},
		{"retry after error", StateCaddError, StateCaddChecking, false},
		{"score filter", StateCaddFiltering, StateAnalyzing, false},
		{"stats", StateAnalyzing, StateDone, false},

		{"skip annotation", StateInitial, StateAnnotated, true},
		{"waiting cannot analyze", StateCaddWaiting, StateAnalyzing, true},
		{"error cannot wait", StateCaddError, StateCaddWaiting, true},
		{"done is final", StateDone, StateAnalyzing, true},
		{"no going back", StateAnalyzing, StateFiltering, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Advance(tt.from, tt.to)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				if got != tt.from {
					t.Fatalf("failed transition should keep %s, got %s", tt.from, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.to {
				t.Fatalf("got %s, want %s", got, tt.to)
			}
		})
	}
}

func TestResets(t *testing.T) {
	for _, s := range []State{StateAnnotated, StateFiltering, StateCaddWaiting, StateCaddError, StateAnalyzing, StateDone} {
		if got := ResetForConfig(s); got != StateAnnotated {
			t.Errorf("ResetForConfig(%s) = %s, want annotated", s, got)
		}
		if got := ResetForFiles(s); got != StateInitial {
			t.Errorf("ResetForFiles(%s) = %s, want initial", s, got)
		}
	}
	if got := ResetForConfig(StateInitial); got != StateInitial {
		t.Errorf("config change in initial must stay initial, got %s", got)
	}
}

func TestArtifactsReset(t *testing.T) {
	a := Artifacts{
		Generation: 2,
		Annotated:  "/p/gen-2/case.annotated.vcf.gz",
		Case:       CohortArtifacts{Final: "case.final.vcf", Submission: "GRCh37-v1.6_abc"},
		Stats:      "stats.csv",
	}

	a.ResetDownstream()
	if a.Generation != 3 || a.Annotated == "" {
		t.Fatalf("downstream reset must keep annotation and bump generation: %+v", a)
	}
	if a.Case.Final != "" || a.Case.Submission != "" || a.Stats != "" {
		t.Fatalf("downstream reset must clear filtered artifacts: %+v", a)
	}

	a.ResetAll()
	if a.Generation != 4 || a.Annotated != "" {
		t.Fatalf("full reset must clear everything: %+v", a)
	}
	if got := a.Dir("/data/projects", "p1"); got != "/data/projects/p1/gen-4" {
		t.Fatalf("unexpected dir %s", got)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("missing inheritance file should be invalid, got %v", err)
	}
	cfg.InheritanceFile = "genes.tsv"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	cfg.FilterPopulation = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("population filter without codes should be invalid")
	}
}

func TestSplitGenes(t *testing.T) {
	got := SplitGenes(" BRCA1, TP53;;\nATM ")
	want := []string{"BRCA1", "TP53", "ATM"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestConfigJSON(t *testing.T) {
	var cfg ProjectConfig
	err := json.Unmarshal([]byte(`{"impact":" HIGH ","genes_exception":"BRCA1, TP53","frequency":0.01}`), &cfg)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.Impact != ImpactHigh {
		t.Fatalf("impact = %q", cfg.Impact)
	}
	if len(cfg.GenesException) != 2 || cfg.GenesException[1] != "TP53" {
		t.Fatalf("genes = %v", cfg.GenesException)
	}

	if err := json.Unmarshal([]byte(`{"genes_exception":["ATM"]}`), &cfg); err != nil || cfg.GenesException[0] != "ATM" {
		t.Fatalf("array form: %v %v", cfg.GenesException, err)
	}

	err = json.Unmarshal([]byte(`{"impact":"SEVERE"}`), &cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("unknown impact: %v", err)
	}
}
