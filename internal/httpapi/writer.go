package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// writeEnvelope emits the legacy response envelope: the payload plus
// an apiversion tag and the original no-cache headers. Existing
// clients parse this shape byte for byte, so it stays as is.
func (h *Handler) writeEnvelope(w http.ResponseWriter, code int, payload map[string]any) {
	payload["apiversion"] = h.APIVersion

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Api-Version", h.APIVersion)
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Log.Error("response encode failed", zap.Error(err))
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, code int, entry map[string]any) {
	h.writeEnvelope(w, code, map[string]any{
		"SUCCESS": []map[string]any{entry},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, code int, message string) {
	h.writeEnvelope(w, code, map[string]any{
		"ERROR": []map[string]any{{"MESSAGE": message}},
	})
}

// requestLogger logs one line per request with the zap fields the
// operators grep for.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lw := &loggingWriter{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(lw, r)

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("status", strconv.Itoa(lw.status)),
				zap.Int("bytes", lw.length),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type loggingWriter struct {
	http.ResponseWriter
	status int
	length int
}

func (w *loggingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.length += n
	return n, err
}
