package exhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/sync/semaphore"

	"github.com/austinmesh/bridger/internal/metrics"
	"github.com/austinmesh/bridger/pkg/log"
)

// emptySuccess is the no-op response body for every hook but publish.
type emptySuccess struct{}

// continueResponse is the response body for the two hooks that defer
// auth/authz to the broker.
type continueResponse struct {
	Verdict Verdict `json:"verdict"`
}

// publishResponse carries the publish hook's verdict and (when STOP_AND_RETURN)
// the mutated message.
type publishResponse struct {
	Verdict Verdict  `json:"verdict"`
	Message *Message `json:"message,omitempty"`
}

// Server exposes the broker hook methods over HTTP+JSON, serving
// RPCs on a bounded worker pool (default 10 concurrent).
type Server struct {
	httpServer *http.Server
	sem        *semaphore.Weighted
	filter     *Filter
	grace      time.Duration
}

// Config describes how to bind and bound the server.
type Config struct {
	Addr           string
	AllowedUsers   []string
	WorkerPoolSize int64
	ShutdownGrace  time.Duration
}

// NewServer builds a Server ready to Serve.
func NewServer(cfg Config) *Server {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 10
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}

	s := &Server{
		sem:    semaphore.NewWeighted(cfg.WorkerPoolSize),
		filter: NewFilter(cfg.AllowedUsers),
		grace:  cfg.ShutdownGrace,
	}

	r := mux.NewRouter()
	r.HandleFunc("/hooks/provider/loaded", s.bounded(s.handleLoaded)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/provider/unloaded", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/client/connect", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/client/connack", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/client/connected", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/client/disconnected", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/client/authenticate", s.bounded(s.handleContinue)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/client/authorize", s.bounded(s.handleContinue)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/client/subscribe", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/client/unsubscribe", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/session/created", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/session/subscribed", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/session/unsubscribed", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/session/resumed", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/session/discarded", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/session/takenover", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/session/terminated", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/message/publish", s.bounded(s.handlePublish)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/message/delivered", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/message/dropped", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/hooks/message/acked", s.bounded(s.handleNoOp)).Methods(http.MethodPost)
	r.HandleFunc("/metrics", metrics.Handler().ServeHTTP)

	var wrapped http.Handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(r)
	wrapped = handlers.CustomLoggingHandler(io.Discard, wrapped, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("exhook: %s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      wrapped,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// bounded acquires a worker-pool slot before running next, returning 503 if
// the server is shutting down (context canceled while waiting).
func (s *Server) bounded(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sem.Acquire(r.Context(), 1); err != nil {
			http.Error(w, "exhook: server busy", http.StatusServiceUnavailable)
			return
		}
		defer s.sem.Release(1)
		next(w, r)
	}
}

func (s *Server) handleNoOp(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, emptySuccess{})
}

func (s *Server) handleLoaded(w http.ResponseWriter, r *http.Request) {
	log.Info("exhook: provider loaded, subscribing to message.publish for all topics")
	writeJSON(w, emptySuccess{})
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, continueResponse{Verdict: VerdictContinue})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, fmt.Sprintf("exhook: decode publish message: %v", err), http.StatusBadRequest)
		return
	}

	verdict, out := s.filter.OnMessagePublish(msg)

	label := "block"
	if out.Headers["allow_publish"] == "true" {
		label = "allow"
	}
	metrics.PublishAdmitted.WithLabelValues(label).Inc()

	writeJSON(w, publishResponse{Verdict: verdict, Message: &out})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Serve starts the HTTP listener. It blocks until the server is shut down.
func (s *Server) Serve() error {
	log.Infof("exhook: listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server cooperatively, waiting up to the configured
// grace period for in-flight RPCs to finish.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
