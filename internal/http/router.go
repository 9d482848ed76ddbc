package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2003deepak/MarkMe-sub000/internal/http/handlers"
)

type Router struct {
	mux *http.ServeMux
}

func NewRouter(overrideHandler *handlers.OverrideHandler) *Router {
	mux := http.NewServeMux()
	overrideHandler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Router{mux: mux}
}

func (r *Router) Handler() http.Handler {
	return r.mux
}
