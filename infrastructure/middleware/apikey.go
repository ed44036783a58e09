package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"sync"

	"github.com/fabhost/agent/infrastructure/httputil"
	sllogging "github.com/fabhost/agent/infrastructure/logging"
)

type auditEvent struct {
	ctx       context.Context
	reason    string
	method    string
	path      string
	clientIP  string
	userAgent string
}

var (
	auditLogger = sllogging.NewFromEnv("management-api")
	auditOnce   sync.Once
	auditQueue  chan *auditEvent
)

func enqueueAudit(event *auditEvent) {
	if event == nil {
		return
	}
	auditOnce.Do(func() {
		auditQueue = make(chan *auditEvent, 256)
		go func() {
			for evt := range auditQueue {
				if evt == nil {
					continue
				}
				fields := map[string]interface{}{
					"audit":      true,
					"event_type": "api_key_rejected",
					"reason":     evt.reason,
					"method":     evt.method,
					"path":       evt.path,
					"client_ip":  evt.clientIP,
					"user_agent": evt.userAgent,
				}
				auditLogger.WithContext(evt.ctx).WithFields(fields).Warn("API key rejected")
			}
		}()
	})

	select {
	case auditQueue <- event:
	default:
		// Never block request processing for audit logging.
	}
}

// defaultAPIKeySkipPaths are always reachable without a key: health probes
// and metrics scraping run unauthenticated by convention.
var defaultAPIKeySkipPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// APIKeyMiddleware checks the X-API-Key header against a fixed, operator
// configured key using a constant-time comparison. Unlike a service-to-service
// JWT scheme, the management API has exactly one caller class (the operator's
// own tooling), so an exact-match shared secret is all the threat model needs.
func APIKeyMiddleware(apiKey string, extraSkipPaths ...string) func(http.Handler) http.Handler {
	expectedHash := sha256.Sum256([]byte(apiKey))

	skip := make(map[string]bool, len(defaultAPIKeySkipPaths)+len(extraSkipPaths))
	for p := range defaultAPIKeySkipPaths {
		skip[p] = true
	}
	for _, p := range extraSkipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			received := r.Header.Get("X-API-Key")
			if received == "" {
				enqueueAudit(&auditEvent{
					ctx:       r.Context(),
					reason:    "missing_key",
					method:    r.Method,
					path:      r.URL.Path,
					clientIP:  httputil.ClientIP(r),
					userAgent: r.UserAgent(),
				})
				httputil.Unauthorized(w, "unauthorized")
				return
			}

			receivedHash := sha256.Sum256([]byte(received))
			if subtle.ConstantTimeCompare(receivedHash[:], expectedHash[:]) != 1 {
				enqueueAudit(&auditEvent{
					ctx:       r.Context(),
					reason:    "invalid_key",
					method:    r.Method,
					path:      r.URL.Path,
					clientIP:  httputil.ClientIP(r),
					userAgent: r.UserAgent(),
				})
				httputil.Unauthorized(w, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
