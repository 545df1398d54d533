package handler

// DI for all handlers.

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yumyai/varenrich/pkg/db"
	"github.com/yumyai/varenrich/pkg/pipeline"
)

type AppContext struct {
	Store       *db.Store
	Pipeline    *pipeline.Orchestrator
	ProjectsDir string
	Gatherer    prometheus.Gatherer // nil disables /metrics
}
