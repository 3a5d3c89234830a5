// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     handler
// Description: REST handlers of the gateway forwarding to HelloService
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	helloworld "github.com/msto63/grpc-sample/api/hello"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	sayHelloMethod     = "/" + helloworld.ServiceName + "/SayHello"
	serverStreamMethod = "/" + helloworld.ServiceName + "/SayHelloServerStream"
)

// Message is the JSON body of every gateway request and response
type Message struct {
	Value string `json:"value"`
}

// HelloHandler forwards REST calls to a HelloService backend
type HelloHandler struct {
	mux    *runtime.ServeMux
	client helloworld.HelloServiceClient
	logger *logging.Logger
}

// NewHelloHandler creates the REST mux. Incoming HTTP headers are turned into
// gRPC metadata the way grpc-gateway does for generated handlers.
func NewHelloHandler(client helloworld.HelloServiceClient) *HelloHandler {
	h := &HelloHandler{
		mux:    runtime.NewServeMux(),
		client: client,
		logger: logging.New("gateway-hello"),
	}
	// Patterns are static and valid; HandlePath only fails on malformed ones.
	must(h.mux.HandlePath(http.MethodPost, "/v1/hello", h.sayHelloBody))
	must(h.mux.HandlePath(http.MethodGet, "/v1/hello/{name}", h.sayHelloPath))
	must(h.mux.HandlePath(http.MethodGet, "/v1/hello/{name}/stream", h.serverStream))
	return h
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// ServeHTTP implements http.Handler
func (h *HelloHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *HelloHandler) sayHelloBody(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var body Message
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		h.fail(w, r, status.Errorf(codes.InvalidArgument, "invalid body: %v", err))
		return
	}
	h.sayHello(w, r, "/v1/hello", body.Value)
}

func (h *HelloHandler) sayHelloPath(w http.ResponseWriter, r *http.Request, params map[string]string) {
	h.sayHello(w, r, "/v1/hello/{name}", params["name"])
}

func (h *HelloHandler) sayHello(w http.ResponseWriter, r *http.Request, pattern, name string) {
	ctx, err := runtime.AnnotateContext(r.Context(), h.mux, r, sayHelloMethod, runtime.WithHTTPPathPattern(pattern))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.client.SayHello(ctx, helloworld.NewMessage(name))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, r, Message{Value: resp.GetValue()})
}

// serverStream collects the whole server stream into one JSON array
func (h *HelloHandler) serverStream(w http.ResponseWriter, r *http.Request, params map[string]string) {
	ctx, err := runtime.AnnotateContext(r.Context(), h.mux, r, serverStreamMethod, runtime.WithHTTPPathPattern("/v1/hello/{name}/stream"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := h.client.SayHelloServerStream(ctx, helloworld.NewMessage(params["name"]))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := []Message{}
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		out = append(out, Message{Value: resp.GetValue()})
	}
	h.logger.Debug("Server stream forwarded", "name", params["name"], "messages", len(out))
	h.write(w, r, out)
}

func (h *HelloHandler) write(w http.ResponseWriter, r *http.Request, v interface{}) {
	_, outbound := runtime.MarshalerForRequest(h.mux, r)
	data, err := json.Marshal(v)
	if err != nil {
		h.fail(w, r, status.Error(codes.Internal, err.Error()))
		return
	}
	ct := outbound.ContentType(v)
	if !strings.Contains(ct, "json") {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	w.Write(append(data, '\n'))
}

// fail maps a gRPC status onto an HTTP status and error body
func (h *HelloHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("Gateway call failed", "path", r.URL.Path, "code", status.Code(err), "error", err)
	_, outbound := runtime.MarshalerForRequest(h.mux, r)
	runtime.HTTPError(r.Context(), h.mux, outbound, w, r, err)
}
