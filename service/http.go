package service

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rushteam/hybridrec/pkg/logging"
)

// HandlerConfig 是 HTTP 层配置。
type HandlerConfig struct {
	DefaultK  int
	MaxK      int
	RateLimit int // 每 IP 每分钟请求数，0 表示不限
}

// Handler 暴露推荐接口、健康检查与指标。
type Handler struct {
	rec    *Recommender
	tokens *TokenParser
	cfg    HandlerConfig
}

func NewHandler(rec *Recommender, tokens *TokenParser, cfg HandlerConfig) *Handler {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = DefaultK
	}
	if cfg.MaxK < cfg.DefaultK {
		cfg.MaxK = cfg.DefaultK
	}
	return &Handler{rec: rec, tokens: tokens, cfg: cfg}
}

// Routes 返回 chi 路由：
//
//	GET /api/recommend?k=10
//	GET /healthz
//	GET /metrics
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if h.cfg.RateLimit > 0 {
			r.Use(httprate.Limit(h.cfg.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Get("/recommend", h.Recommend)
	})
	return r
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Recommend 处理推荐请求；token 缺失或无效时按未登录处理。
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	k := h.cfg.DefaultK
	if raw := r.URL.Query().Get("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "k must be a positive integer"})
			return
		}
		k = min(v, h.cfg.MaxK)
	}

	var userID int64
	if h.tokens != nil {
		id, err := h.tokens.UserID(r)
		if err != nil && !errors.Is(err, ErrNoToken) {
			log := logging.Component("service")
			log.Debug().Err(err).Msg("invalid access token, serving fallback")
		}
		userID = id
	}

	resp, err := h.rec.Recommend(r.Context(), userID, k)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log := logging.Component("service")
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}
