package i18n

import "net/http"

// Middleware injects a localizer into every request context. The
// request's Accept-Language header picks the language; the configured
// server language answers for requests that send none or name a
// language without a catalog.
func Middleware(fallback string) func(http.Handler) http.Handler {
	serverLoc := NewLocalizer(fallback)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := serverLoc
			if accept := r.Header.Get("Accept-Language"); accept != "" {
				loc = NewLocalizer(accept, fallback)
			}
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
