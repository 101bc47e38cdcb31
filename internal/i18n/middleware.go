package i18n

import "net/http"

// Middleware attaches a localizer derived from the Accept-Language
// header (or the lang query parameter, which wins) to each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := r.URL.Query().Get("lang")
		accept := r.Header.Get("Accept-Language")

		prefs := make([]string, 0, 2)
		if lang != "" {
			prefs = append(prefs, lang)
		}
		if accept != "" {
			prefs = append(prefs, accept)
		}

		ctx := WithLocalizer(r.Context(), NewLocalizer(prefs...))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
