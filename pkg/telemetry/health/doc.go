// Package health serves keeper's liveness, readiness and build endpoints.
//
//   - /health is always 200 while keeper serves HTTP, whatever the state of
//     the supervised proxy.
//   - /ready runs the registered checks and answers 503 while any fails.
//   - /version reports build information.
//
// keeper registers three checks: proxy (ProcessCheck against the
// supervisor), binary (ExecutableCheck) and config (FileCheck on the
// runtime config). A degraded /ready body looks like:
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "binary": {"status": "failing", "message": "binary unavailable: stat ./v2ray: no such file or directory", "duration_ms": 0.03},
//	        "proxy": {"status": "failing", "message": "not_started: binary unavailable", "duration_ms": 0.01}
//	    },
//	    "failing": ["proxy", "binary"],
//	    "timestamp": "2025-11-20T10:30:00Z"
//	}
package health
