package middleware

import (
	"net/http"
	"regexp"

	"go.uber.org/zap"
)

var idRe = regexp.MustCompile(`^[A-Za-z0-9:_\-\.]{1,128}$`)

// pathIDs are the route wildcards that carry document IDs
var pathIDs = []struct {
	name  string
	label string
}{
	{"project_id", "project ID"},
	{"series_id", "series ID"},
	{"episode_id", "episode ID"},
	{"report_id", "report ID"},
}

// ValidationMiddleware rejects malformed document IDs before they reach the store
type ValidationMiddleware struct {
	logger *zap.Logger
}

func NewValidationMiddleware(logger *zap.Logger) *ValidationMiddleware {
	return &ValidationMiddleware{logger: logger}
}

func (vm *ValidationMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range pathIDs {
			v := r.PathValue(p.name)
			if v == "" {
				continue
			}
			if !idRe.MatchString(v) {
				vm.logger.Debug("Rejected path parameter", zap.String("param", p.name), zap.String("path", r.URL.Path))
				sendJSONError(w, "Invalid "+p.label+" format", http.StatusBadRequest)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
