package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HTTPRecorder records audited requests after they have been handled.
type HTTPRecorder struct {
	Service *Service
	OnError func(error)
	// SessionParam names the chi route parameter holding the session id.
	SessionParam string
}

// Middleware returns a chi-compatible middleware that journals the request
// under action.
func (r HTTPRecorder) Middleware(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if r.Service == nil || !r.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}
			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, req)

			param := r.SessionParam
			if param == "" {
				param = "sessionID"
			}
			if err := r.Service.Record(req.Context(), req, action, chi.URLParam(req, param), recorder.Status(), nil); err != nil && r.OnError != nil {
				r.OnError(err)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
