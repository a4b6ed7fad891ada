// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/terraflex/terraflex/internal/logging"
	"github.com/terraflex/terraflex/internal/storage"
	"github.com/terraflex/terraflex/internal/terrors"
)

// HTTPServer implements the six-operation HTTP state-backend protocol over
// a Controller, routed with gorilla/mux.
type HTTPServer struct {
	controller *Controller
	log        hclog.Logger
	handler    http.Handler
}

// NewHTTPServer builds the router for every configured stack.
func NewHTTPServer(controller *Controller) *HTTPServer {
	s := &HTTPServer{
		controller: controller,
		log:        logging.New("server.http"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/{stack}/state", s.handleGetState).Methods(http.MethodGet)
	r.HandleFunc("/{stack}/state", s.handlePostState).Methods(http.MethodPost)
	r.HandleFunc("/{stack}/state", s.handleDeleteState).Methods(http.MethodDelete)
	r.HandleFunc("/{stack}/lock", s.handleLockState).Methods(http.MethodPut)
	r.HandleFunc("/{stack}/lock", s.handleUnlockState).Methods(http.MethodDelete)
	s.handler = withRequestLogging(s.log, r)

	return s
}

// Handler returns the http.Handler serving every route.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, "Ready")
}

func (s *HTTPServer) handleGetState(w http.ResponseWriter, r *http.Request) {
	stack := mux.Vars(r)["stack"]

	data, err := s.controller.Get(r.Context(), stack)
	if err != nil {
		writeError(w, err)
		return
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		writeError(w, &terrors.DriverFailureError{Driver: stack, Err: err})
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (s *HTTPServer) handlePostState(w http.ResponseWriter, r *http.Request) {
	stack := mux.Vars(r)["stack"]
	lockID := r.URL.Query().Get("ID")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if err := s.controller.Put(r.Context(), stack, lockID, body); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *HTTPServer) handleDeleteState(w http.ResponseWriter, r *http.Request) {
	stack := mux.Vars(r)["stack"]

	lockID, err := s.controller.DeleteStateLockID(r.Context(), stack)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.controller.Delete(r.Context(), stack, lockID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *HTTPServer) handleLockState(w http.ResponseWriter, r *http.Request) {
	stack := mux.Vars(r)["stack"]

	var body storage.LockBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid lock body", http.StatusBadRequest)
		return
	}

	if err := s.controller.Lock(r.Context(), stack, body); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *HTTPServer) handleUnlockState(w http.ResponseWriter, r *http.Request) {
	stack := mux.Vars(r)["stack"]

	if err := s.controller.Unlock(r.Context(), stack); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type conflictBody struct {
	Detail string `json:"detail"`
	ID     string `json:"ID"`
}

// writeError maps a controller error to the HTTP status the protocol
// requires: NotFound -> 404, LockConflict -> 409 with {detail, ID},
// UnknownStack -> 404, UnsupportedCapability -> 501, everything else -> 500.
func writeError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *terrors.NotFoundError:
		http.Error(w, e.Error(), http.StatusNotFound)
	case *terrors.UnknownStackError:
		http.Error(w, e.Error(), http.StatusNotFound)
	case *terrors.LockConflictError:
		writeJSON(w, http.StatusConflict, conflictBody{Detail: e.Reason, ID: e.LockID})
	case *terrors.UnsupportedCapabilityError:
		http.Error(w, e.Error(), http.StatusNotImplemented)
	case *terrors.ConfigInvalidError, *terrors.DependencyMissingError:
		http.Error(w, e.Error(), http.StatusInternalServerError)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func withRequestLogging(log hclog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := logging.NewRequestID()
		log.Debug("handling request", "request_id", requestID, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
