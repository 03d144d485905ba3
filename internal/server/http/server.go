// Package httpserver exposes the queue service as a JSON control plane.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/quillmq/quill/internal/queue"
	"github.com/quillmq/quill/internal/registry"
	"github.com/quillmq/quill/internal/runtime"
	queuesvc "github.com/quillmq/quill/internal/services/queues"
	"github.com/quillmq/quill/pkg/log"
)

type Server struct {
	rt     *runtime.Runtime
	svc    *queuesvc.Service
	logger log.Logger
	srv    *http.Server
	lis    net.Listener
}

func New(rt *runtime.Runtime, svc *queuesvc.Service, logger log.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		rt:     rt,
		svc:    svc,
		logger: logger.With(log.Component("http")),
		srv:    &http.Server{Handler: cors(mux)},
	}
	mux.HandleFunc("/v1/healthz", s.handleHealth)

	mux.HandleFunc("/v1/queues", s.handleListQueues)
	mux.HandleFunc("/v1/queues/create", s.handleCreateQueue)
	mux.HandleFunc("/v1/queues/delete", s.handleDeleteQueue)
	mux.HandleFunc("/v1/queues/purge", s.handlePurgeQueue)
	mux.HandleFunc("/v1/queues/attributes", s.handleQueueAttributes)

	mux.HandleFunc("/v1/messages/send", s.handleSend)
	mux.HandleFunc("/v1/messages/send-batch", s.handleSendBatch)
	mux.HandleFunc("/v1/messages/receive", s.handleReceive)
	mux.HandleFunc("/v1/messages/delete", s.handleDelete)
	mux.HandleFunc("/v1/messages/delete-batch", s.handleDeleteBatch)
	mux.HandleFunc("/v1/messages/change-visibility", s.handleChangeVisibility)
	mux.HandleFunc("/v1/messages/peek", s.handlePeek)
	return s
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http server listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", log.Err(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrQueueNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrQueueReferenced),
		errors.Is(err, registry.ErrQueueExists):
		return http.StatusConflict
	case errors.Is(err, queue.ErrMissingGroupID),
		errors.Is(err, queue.ErrInvalidReceiptHandle),
		errors.Is(err, queue.ErrBatchTooLarge),
		errors.Is(err, queue.ErrMalformedMessage),
		errors.Is(err, registry.ErrInvalidQueueName),
		errors.Is(err, registry.ErrInvalidRedrive):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a POST body into dst, enforcing the method.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return false
	}
	return true
}
