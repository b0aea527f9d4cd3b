package web

import (
	"encoding/json"
	"net/http"

	manager "v2scrape/collector"
	"v2scrape/internal/shared/logger"
)

// RunController 是 web 层需要的 Manager 能力，使 web 包不依赖具体实现。
type RunController interface {
	Status() manager.Status
	TriggerRun() bool
}

type Handler struct {
	controller RunController
}

func NewHandler(controller RunController) *Handler {
	return &Handler{controller: controller}
}

// HandleStatus 处理 GET /api/status，返回最近一次运行的记录和统计表。
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Status())
}

// HandleRun 处理 POST /api/run，请求调度循环立即执行一次运行。
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.controller.TriggerRun() {
		writeJSON(w, http.StatusConflict, map[string]any{"queued": false, "message": "a run is already queued"})
		return
	}
	logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Run triggered via API.")
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("Failed to encode response.")
	}
}
