package httpserver

import (
	"net/http"

	queuesvc "github.com/quillmq/quill/internal/services/queues"
)

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	list, err := s.svc.ListQueues(r.URL.Query().Get("prefix"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []queuesvc.QueueAttributes{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": list})
}

func (s *Server) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	var req queuesvc.CreateQueueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, err := s.svc.CreateQueue(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

type queueNameReq struct {
	Name string `json:"name"`
}

func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) {
	var req queueNameReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.DeleteQueue(r.Context(), req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePurgeQueue(w http.ResponseWriter, r *http.Request) {
	var req queueNameReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.PurgeQueue(r.Context(), req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQueueAttributes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	attrs, err := s.svc.GetQueueAttributes(r.URL.Query().Get("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attrs)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req queuesvc.SendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.svc.Send(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSendBatch(w http.ResponseWriter, r *http.Request) {
	var req queuesvc.SendBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.svc.SendBatch(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req queuesvc.ReceiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msgs, err := s.svc.Receive(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []queuesvc.ReceivedMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req queuesvc.DeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.Delete(r.Context(), req); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	var req queuesvc.DeleteBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.svc.DeleteBatch(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChangeVisibility(w http.ResponseWriter, r *http.Request) {
	var req queuesvc.ChangeVisibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.ChangeVisibility(r.Context(), req); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePeek(w http.ResponseWriter, r *http.Request) {
	var req queuesvc.PeekRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msgs, err := s.svc.Peek(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []queuesvc.ReceivedMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
