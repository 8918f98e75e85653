package shield

import "net/http"

// HeadToGet rewrites HEAD requests to GET before routing. The gallery and
// blob routes are registered with r.Get() only; without this, uptime
// checkers probing with HEAD would get 405. net/http drops the response
// body for HEAD on its own, so the rewrite is safe.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
