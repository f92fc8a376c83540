package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imgresize/internal/cache"
	"imgresize/internal/config"
	"imgresize/internal/image_source"
	"imgresize/internal/metrics"
	"imgresize/internal/resizer"
)

const (
	msgNotFound         = "Image file not found"
	msgProcessingFailed = "Image processing failed"
)

type Handlers struct {
	config  *config.Config
	logger  *zap.Logger
	images  *image_source.Directory
	cache   cache.Cache
	metrics *metrics.Metrics
}

func New(config *config.Config, logger *zap.Logger, images *image_source.Directory, derivatives cache.Cache, m *metrics.Metrics) *Handlers {
	return &Handlers{
		config:  config,
		logger:  logger,
		images:  images,
		cache:   derivatives,
		metrics: m,
	}
}

// Routes returns the service's full handler, middleware included.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /resize", h.HandleResize)
	if h.config.MetricsEnabled && h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}

	return h.CORSMiddleware(h.RequestLoggingMiddleware(mux))
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		w.Header().Set("X-Request-Id", requestID)
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		// Pattern is filled in by the mux; unmatched paths share one label.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		h.metrics.ObserveRequest(route, wrapped.statusCode)

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", h.extractIP(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("query", r.URL.RawQuery),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", wrapped.bytesWritten),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigin := h.config.AllowedOrigin
		if allowedOrigin == "" {
			allowedOrigin = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (h *Handlers) HandleResize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filename := query.Get("filename")
	widthParam := query.Get("width")
	heightParam := query.Get("height")

	switch {
	case filename == "":
		writeError(w, http.StatusBadRequest, "Missing filename parameter.")
		return
	case widthParam == "":
		writeError(w, http.StatusBadRequest, "Missing width parameter.")
		return
	case heightParam == "":
		writeError(w, http.StatusBadRequest, "Missing height parameter.")
		return
	}

	name := image_source.Sanitize(filename)

	width, msg := parseDimension("Width", widthParam, h.config.MaxDimension)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	height, msg := parseDimension("Height", heightParam, h.config.MaxDimension)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	sourcePath, err := h.images.Resolve(name)
	if err != nil {
		if errors.Is(err, image_source.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgNotFound)
			return
		}
		h.processingFailed(w, name, width, height, err)
		return
	}

	ctx := r.Context()
	if h.config.ResizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.ResizeTimeout)
		defer cancel()
	}

	key := cache.BuildKey(name, width, height)
	derivative, err := h.cache.GetOrCreate(ctx, sourcePath, h.cache.Path(key), width, height)
	if err != nil {
		h.processingFailed(w, name, width, height, err)
		return
	}
	defer func() {
		if err := derivative.Close(); err != nil {
			h.logger.Warn("Failed to release derivative", zap.String("path", derivative.Path), zap.Error(err))
		}
	}()

	f, err := os.Open(derivative.Path)
	if err != nil {
		h.processingFailed(w, name, width, height, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.processingFailed(w, name, width, height, err)
		return
	}

	cacheStatus := "MISS"
	if derivative.Hit {
		cacheStatus = "HIT"
	}

	w.Header().Set("Content-Type", resizer.ContentType(key))
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.Header().Set("X-Cache", cacheStatus)

	// ServeContent handles Content-Length, HEAD, ranges and conditional requests.
	http.ServeContent(w, r, key, info.ModTime(), f)
}

// processingFailed logs the cause for operators and answers with a generic 500.
func (h *Handlers) processingFailed(w http.ResponseWriter, filename string, width, height int, err error) {
	h.logger.Error("Failed to resize image",
		zap.String("filename", filename),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, msgProcessingFailed)
}

// parseDimension parses a width or height query value. It returns the client
// facing message when the value is rejected.
func parseDimension(label, value string, max int) (int, string) {
	// Overflow parses to an infinity, which counts as too large below.
	n, err := strconv.ParseFloat(value, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, label + " must be a positive integer."
	}
	if err := resizer.CheckDimension(n); err != nil {
		return 0, label + " must be a positive integer."
	}
	if n > float64(max) {
		return 0, fmt.Sprintf("%s must not exceed %d.", label, max)
	}
	return int(n), ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Not for real production use due to potential spoofing
func (h *Handlers) extractIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return strings.Split(ip, ":")[0]
	}

	addr := r.RemoteAddr
	if addr != "" {
		return strings.Split(addr, ":")[0]
	}

	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
