package types

import (
	"github.com/yumyai/varenrich/pkg/model"
)

// Request and response bodies of the JSON API.

type CreateProjectRequest struct {
	Title  string               `json:"title"`
	Config *model.ProjectConfig `json:"config,omitempty"` // defaults apply when omitted
}

type ProjectStatus struct {
	Project   *model.Project      `json:"project"`
	Artifacts *model.Artifacts    `json:"artifacts"`
	Files     []model.VariantFile `json:"files"`
	Next      string              `json:"next_stage,omitempty"`
}

type ProcessResponse struct {
	Stage string `json:"stage,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
