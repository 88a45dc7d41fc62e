package guard

import (
	"context"
	"errors"
	"net/http"
)

// HandlerFunc is an http handler that reports failure by returning an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ArgsFunc extracts the arguments of a guarded call from a request.
type ArgsFunc func(r *http.Request) []Arg

// QueryArgs returns an ArgsFunc reading the named query parameters in order.
func QueryArgs(names ...string) ArgsFunc {
	return func(r *http.Request) []Arg {
		query := r.URL.Query()
		args := make([]Arg, 0, len(names))
		for _, name := range names {
			args = append(args, Param(name, query.Get(name)))
		}
		return args
	}
}

// Handler serves h under the lock of op. Duplicate requests get 409
// Conflict, an unreachable lock store 503 and failures of h 500.
func (g *Guard) Handler(op string, args ArgsFunc, h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		call := Call{Operation: op}
		if args != nil {
			call.Args = args(r)
		}
		err := g.Do(r.Context(), call, func(_ context.Context) error {
			return h(sw, r)
		})
		if err == nil || sw.wroteHeader {
			return
		}
		http.Error(w, err.Error(), StatusCode(err))
	})
}

// StatusCode maps a guard error to an HTTP status code.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrLockContention):
		return http.StatusConflict
	case errors.Is(err, ErrLockUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type statusWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
