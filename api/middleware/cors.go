package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the configured browser origins to call the API with
// credentials and read the request id and replay headers.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			IdempotencyHeader, "X-Refresh-Token", "X-Requested-With", requestIDHeader,
		},
		ExposedHeaders:   []string{requestIDHeader, "Idempotent-Replayed", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
