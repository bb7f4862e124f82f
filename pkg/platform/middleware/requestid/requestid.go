// Package requestid propagates a request identifier from the X-Request-ID
// header, generating one when the caller did not send it.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"trustos/pkg/requestcontext"
)

const Header = "X-Request-ID"

// Middleware sets the request ID on the context and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}
