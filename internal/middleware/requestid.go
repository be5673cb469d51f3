package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/Strob0t/AgentFleet/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID tags every request with a correlation ID. A caller-supplied
// X-Request-ID is trusted as-is so operators can trace a call through the
// dashboard proxy; otherwise a random one is minted. The ID travels in the
// request context for the slog middleware and is echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			var buf [16]byte
			_, _ = rand.Read(buf[:])
			id = hex.EncodeToString(buf[:])
		}

		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
