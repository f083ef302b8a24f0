package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-nock/internal/savedmodel"
)

type server struct {
	store savedmodel.SessionStore
}

func newServer(store savedmodel.SessionStore) *server {
	return &server{store: store}
}

func (s *server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/models", s.handleModels)
	return mux
}

func startServer(addr string, store savedmodel.SessionStore) {
	srv := newServer(store)

	log.Info().Str("addr", addr).Msg("Starting Nock metrics listener")
	if err := http.ListenAndServe(addr, srv.mux()); err != nil {
		log.Fatal().Err(err).Msg("Metrics listener failed")
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fmt.Fprintf(w, "%d\n", s.store.Len())
}
