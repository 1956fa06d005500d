package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/pmpgw/core/config"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer // nil unless response body logging is enabled
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.body != nil {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

// AccessLog logs one structured entry per request: method, path, status,
// duration and request id, optionally extended with headers/bodies per cfg.
func AccessLog(cfg config.LoggingConfig, log *logrus.Entry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var bodyCopy []byte
		if cfg.LogRequestBody && r.Body != nil {
			bodyCopy, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(bodyCopy))
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		if cfg.LogResponseBody {
			rec.body = &bytes.Buffer{}
		}
		next.ServeHTTP(rec, r)

		entry := log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  FromContext(r.Context()),
		})
		if cfg.LogHeaders {
			entry = entry.WithField("headers", r.Header)
		}
		if cfg.LogRequestBody {
			entry = entry.WithField("request_body", string(bodyCopy))
		}
		if cfg.LogResponseBody {
			entry = entry.WithField("response_body", rec.body.String())
		}
		entry.Info("request handled")
	})
}
