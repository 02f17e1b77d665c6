// Package profiling provides env-gated pprof and continuous profiling for
// the attribution service.
package profiling

import (
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
)

// StartPprofServer starts a pprof server on a separate port when
// ENABLE_PROFILING=true. It binds to localhost only; profiles are pulled
// from inside the pod or over a tunnel.
func StartPprofServer() {
	if os.Getenv("ENABLE_PROFILING") != "true" {
		return
	}

	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6060"
	}

	addr := "localhost:" + pprofPort

	go func() {
		log.Printf("Starting pprof server on %s", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Printf("pprof server error: %v", err)
		}
	}()
}
