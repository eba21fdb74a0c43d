// Package server exposes a Router over HTTP. The handlers are transport
// only: request decoding, response encoding and metrics. Every semantic —
// routing, dual-write combination, capability gating — stays in the router.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/aweris/locstore"
)

// Server serves the location-store HTTP API.
type Server struct {
	router *locstore.Router
	log    *zap.Logger
	http   *http.Server
}

// New builds a server over router. A nil registry uses the default
// prometheus registerer.
func New(router *locstore.Router, log *zap.Logger, registry *prometheus.Registry) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{router: router, log: log.Named("http")}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Method(http.MethodGet, "/metrics", registerMetrics(registry))

	mux.Route("/v1", func(v1 chi.Router) {
		v1.Post("/lookup", s.handleLookup)
		v1.Post("/register", s.handleRegister)
		v1.Post("/trim", s.handleTrim)
		v1.Post("/trim-replicas", s.handleTrimReplicas)
		v1.Post("/touch", s.handleTouch)
		v1.Post("/gc", s.handleGC)
		v1.Get("/counters", s.handleCounters)
		v1.Get("/machines/random", s.handleRandomMachine)
		v1.Get("/machines/{machine}/active", s.handleMachineActive)
		v1.Put("/blobs/{hash}", s.handlePutBlob)
		v1.Get("/blobs/{hash}", s.handleGetBlob)
	})

	s.http = &http.Server{Handler: mux}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe starts the backends, then serves on addr until the server
// is shut down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.router.Start(ctx); err != nil {
		return err
	}
	s.http.Addr = addr
	s.log.Info("listening", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the HTTP server and stops the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	return s.router.Stop(ctx)
}

type lookupRequest struct {
	Hashes []locstore.ContentHash `json:"hashes"`
	Origin string                 `json:"origin"`
}

type registerRequest struct {
	Machine locstore.MachineLocation `json:"machine"`
	Blobs   []locstore.BlobRecord    `json:"blobs"`
	Touch   bool                     `json:"touch"`
}

type trimRequest struct {
	Hashes []locstore.ContentHash `json:"hashes"`
}

type trimReplicasRequest struct {
	Replicas map[locstore.ContentHash][]locstore.MachineLocation `json:"replicas"`
}

type touchRequest struct {
	Machine locstore.MachineLocation `json:"machine"`
	Hashes  []locstore.ContentHash   `json:"hashes"`
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req lookupRequest
	if !s.decode(w, r, &req) {
		return
	}
	origin := locstore.OriginGlobal
	if req.Origin == "local" {
		origin = locstore.OriginLocal
	}
	locs, err := s.router.Lookup(r.Context(), req.Hashes, origin)
	observe("lookup", start, err)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, map[string]any{"locations": locs})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.router.Register(r.Context(), req.Machine, req.Blobs, req.Touch)
	observe("register", start, err)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrim(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req trimRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.router.TrimByHashes(r.Context(), req.Hashes)
	observe("trim", start, err)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrimReplicas(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req trimReplicasRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.router.TrimByMap(r.Context(), req.Replicas)
	observe("trim_replicas", start, err)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req touchRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.router.Touch(r.Context(), req.Machine, req.Hashes)
	observe("touch", start, err)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	err := s.router.GarbageCollect(r.Context())
	observe("gc", start, err)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	counters, err := s.router.Counters(r.Context())
	observe("counters", start, err)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, counters)
}

func (s *Server) handleRandomMachine(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	m, err := s.router.RandomMachine(r.Context())
	observe("random_machine", start, err)
	if errors.Is(err, locstore.ErrNoActiveMachines) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, map[string]any{"machine": m})
}

func (s *Server) handleMachineActive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	machine := locstore.MachineLocation(chi.URLParam(r, "machine"))
	active, err := s.router.IsMachineActive(r.Context(), machine)
	observe("machine_active", start, err)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, map[string]any{"machine": machine, "active": active})
}

func (s *Server) handlePutBlob(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	hash := locstore.ContentHash(chi.URLParam(r, "hash"))
	data, err := io.ReadAll(io.LimitReader(r.Body, s.router.MaxBlobSize()+1))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = s.router.PutBlob(r.Context(), hash, data)
	observe("put_blob", start, err)
	if errors.Is(err, locstore.ErrBlobTooLarge) {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	hash := locstore.ContentHash(chi.URLParam(r, "hash"))
	data, err := s.router.GetBlob(r.Context(), hash)
	observe("get_blob", start, err)
	switch {
	case errors.Is(err, locstore.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, locstore.ErrBlobsNotSupported):
		http.Error(w, err.Error(), http.StatusNotImplemented)
	case err != nil:
		s.fail(w, err)
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Warn("operation failed", zap.Error(err))
	http.Error(w, err.Error(), http.StatusBadGateway)
}
