package handlers

import "net/http"

// RootHandler answers the platform's liveness probe on "/".
type RootHandler struct{}

// NewRootHandler creates a root handler.
func NewRootHandler() *RootHandler {
	return &RootHandler{}
}

// ServeHTTP always answers "Server is running", whatever the proxy state.
func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allowRead(r.Method) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// The mux routes every unmatched path to "/".
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Server is running"))
}
