package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
)

// DefaultSuccessBody is returned by ScriptedServer once its script is
// exhausted.
const DefaultSuccessBody = `{"ServiceResponse":{"responseCode":"SUCCESS","count":1}}`

// Response is one scripted reply. Drop closes the connection without a
// response, which the client sees as a transport error.
type Response struct {
	Status int    `yaml:"status"`
	Body   string `yaml:"body"`
	Drop   bool   `yaml:"drop"`
}

// Request is what the server received on one call.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// ScriptedServer is an httptest server that answers calls with a fixed
// sequence of responses and records every request. After the script runs
// out it answers 200 with DefaultSuccessBody.
type ScriptedServer struct {
	*httptest.Server

	mu       sync.Mutex
	script   []Response
	requests []Request
}

// NewScriptedServer starts a server for script. Callers must Close it.
func NewScriptedServer(script ...Response) *ScriptedServer {
	s := &ScriptedServer{script: script}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *ScriptedServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	resp := Response{Status: http.StatusOK, Body: DefaultSuccessBody}
	if len(s.script) > 0 {
		resp = s.script[0]
		s.script = s.script[1:]
	}
	s.mu.Unlock()

	if resp.Drop {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
		panic(http.ErrAbortHandler)
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp.Body)
}

// Requests returns a copy of the requests received so far.
func (s *ScriptedServer) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls returns the number of requests received so far.
func (s *ScriptedServer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Host returns the host:port the server listens on.
func (s *ScriptedServer) Host() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return u.Host
}
