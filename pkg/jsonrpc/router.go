package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// HandlerFunc serves one JSON-RPC method. Returning an *Error passes it through
// unchanged; any other error becomes CodeInternalError.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Router dispatches JSON-RPC requests received over HTTP POST to registered methods
type Router struct {
	mu      sync.RWMutex
	methods map[string]HandlerFunc
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{methods: make(map[string]HandlerFunc)}
}

// RegisterMethod registers a method handler
func (r *Router) RegisterMethod(name string, handler HandlerFunc) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.methods[name] = handler
	return nil
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	var rpcReq Request
	if err := json.Unmarshal(body, &rpcReq); err != nil {
		writeResponse(w, &Response{
			JSONRPC: Version,
			ID:      json.RawMessage("null"),
			Error:   NewError(CodeParseError, "Parse error", err.Error()),
		})
		return
	}

	resp := r.route(req.Context(), &rpcReq)
	if rpcReq.IsNotification() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeResponse(w, resp)
}

func (r *Router) route(ctx context.Context, req *Request) *Response {
	resp := &Response{JSONRPC: Version, ID: req.ID}

	if req.JSONRPC != Version || req.Method == "" {
		resp.Error = NewError(CodeInvalidRequest, "Invalid request", nil)
		return resp
	}

	r.mu.RLock()
	handler, ok := r.methods[req.Method]
	r.mu.RUnlock()

	if !ok {
		resp.Error = NewError(CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
		return resp
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			resp.Error = rpcErr
		} else {
			resp.Error = NewError(CodeInternalError, err.Error(), nil)
		}
		return resp
	}

	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = NewError(CodeInternalError, "failed to encode result", err.Error())
		return resp
	}
	resp.Result = raw
	return resp
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	if len(resp.ID) == 0 {
		resp.ID = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
