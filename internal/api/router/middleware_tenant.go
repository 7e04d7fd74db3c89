package router

import (
	"net/http"
	"strings"

	"github.com/evolvian/assistant-platform/internal/tenancy"
)

const tenantHeader = "X-Tenant-Id"

// requireTenantID middleware enforces multi-tenancy headers for API requests.
func requireTenantID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(tenantHeader))
		if tenantID == "" {
			http.Error(w, "missing X-Tenant-Id", http.StatusBadRequest)
			return
		}
		ctx := tenancy.WithTenantID(r.Context(), tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
