package httpkit

import (
	"net/http"
	"time"

	"otprelay/internal/platform/net/middleware"
)

// CommonStack is the baseline per module middleware slice
// origins empty means no CORS headers at all
func CommonStack(origins []string) []func(http.Handler) http.Handler {
	stack := middleware.Defaults(500*time.Millisecond, "/metrics", "/healthz", "/readyz")
	if len(origins) > 0 {
		stack = append(stack, middleware.CORS(middleware.CORSOptions{AllowedOrigins: origins, MaxAge: 300}))
	}
	return stack
}
