package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/monitoring"
	"github.com/genx3d/genx3d/internal/parts"
)

type healthResponse struct {
	Status   string                      `json:"status"`
	Metrics  *monitoring.MetricsSnapshot `json:"metrics,omitempty"`
	Circuits map[string]string           `json:"circuits,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.deps.Health != nil {
		snap, err := s.deps.Health.Collect()
		if err != nil {
			zap.L().Warn("server: health snapshot failed", zap.Error(err))
			resp.Status = "degraded"
		}
		resp.Metrics = snap
	}
	if s.deps.Breakers != nil {
		resp.Circuits = s.deps.Breakers.States()
		for _, state := range resp.Circuits {
			if state != "closed" {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Generator == nil {
		writeError(w, http.StatusServiceUnavailable, "generation not configured")
		return
	}
	req, ok := readJSON[generateRequest](w, r)
	if !ok {
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if !requireField(w, prompt, "prompt") {
		return
	}
	res := s.deps.Generator.Generate(r.Context(), prompt)
	writeJSON(w, generationStatus(res), res)
}

// generationStatus maps a pipeline outcome to an HTTP status.
func generationStatus(res model.GenerationResult) int {
	if res.Success {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat not configured")
		return
	}
	req, ok := readJSON[chatRequest](w, r)
	if !ok {
		return
	}
	resp := s.deps.Chat.Handle(r.Context(), req.Message)
	status := http.StatusOK
	if resp.Generation != nil {
		status = generationStatus(*resp.Generation)
	}
	writeJSON(w, status, resp)
}

type partRequest struct {
	parts.Spec
	Format string `json:"format"`
}

type partResponse struct {
	Spec        parts.Spec           `json:"spec"`
	Description string               `json:"description"`
	Model       model.GeneratedModel `json:"model"`
}

func (s *Server) handleParts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Models == nil {
		writeError(w, http.StatusServiceUnavailable, "model store not configured")
		return
	}
	req, ok := readJSON[partRequest](w, r)
	if !ok {
		return
	}
	format := req.Format
	if format == "" {
		format = s.cfg.Format
	}
	spec := req.Spec
	if err := spec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	m, err := parts.Export(spec, s.deps.Models, format)
	if err != nil {
		if errors.Is(err, parts.ErrInvalid) {
			writeError(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, partResponse{Spec: spec, Description: spec.Describe(), Model: m})
}

// validationMessage strips the sentinel suffix from a parts validation error.
func validationMessage(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+parts.ErrInvalid.Error())
}

type modelsResponse struct {
	Models []model.GeneratedModel `json:"models"`
	Count  int                    `json:"count"`
}

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Models == nil {
		writeError(w, http.StatusServiceUnavailable, "model store not configured")
		return
	}
	models, err := s.deps.Models.List()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if models == nil {
		models = []model.GeneratedModel{}
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: models, Count: len(models)})
}

type cleanupRequest struct {
	// MaxAgeHours overrides the configured age; 0 uses it, negative deletes
	// every model.
	MaxAgeHours *float64 `json:"max_age_hours"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if s.deps.Models == nil {
		writeError(w, http.StatusServiceUnavailable, "model store not configured")
		return
	}
	maxAge := s.cfg.CleanupMaxAge
	if r.ContentLength != 0 {
		req, ok := readJSON[cleanupRequest](w, r)
		if !ok {
			return
		}
		if req.MaxAgeHours != nil && *req.MaxAgeHours != 0 {
			maxAge = time.Duration(*req.MaxAgeHours * float64(time.Hour))
		}
	}
	stats, err := s.deps.Models.Sweep(maxAge)
	s.deps.Metrics.ObserveSweep(stats)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	zap.L().Info("server: cleanup", zap.Int("deleted", stats.Deleted), zap.Int64("freed", stats.Freed))
	writeJSON(w, http.StatusOK, stats)
}
