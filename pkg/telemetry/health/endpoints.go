package health

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// BuildInfo is the body of /version.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Mount serves /health, /ready and /version on mux. /ready answers 503
// while any check fails so platform routers hold traffic until the proxy
// runs.
func Mount(mux *http.ServeMux, c *Checker, build BuildInfo) {
	if build.GoVersion == "" {
		build.GoVersion = runtime.Version()
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, r, http.StatusOK, c.Live())
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		report := c.Ready(r.Context())
		code := http.StatusOK
		if report.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeReport(w, r, code, report)
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, r, http.StatusOK, build)
	})
}

func writeReport(w http.ResponseWriter, r *http.Request, code int, body any) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}
