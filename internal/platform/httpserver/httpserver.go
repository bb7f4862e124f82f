package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with timeouts sized for synchronous verification,
// which can wait on several upstream registries.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}
