package messaging

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBody = 64 << 10

// HTTPHandler exposes the router over HTTP:
//
//	POST /message  {action, payload} -> {success, data, error}
//	GET  /status   getSessionStatus shortcut
func HTTPHandler(rt *Router) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/message", func(w http.ResponseWriter, req *http.Request) {
		var msg Request
		dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBody))
		if err := dec.Decode(&msg); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Error: fmt.Sprintf("invalid request: %v", err)})
			return
		}
		resp := rt.Dispatch(req.Context(), msg)
		code := http.StatusOK
		if _, ok := rt.handlers[msg.Action]; !ok {
			code = http.StatusNotFound
		}
		writeJSON(w, code, resp)
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, rt.Dispatch(req.Context(), Request{Action: ActionStatus}))
	})

	r.Get("/actions", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, rt.Actions())
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; nothing useful left to send.
		_ = err
	}
}
