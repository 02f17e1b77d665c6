package profiling

import (
	"fmt"
	"os"
	"runtime"

	"github.com/grafana/pyroscope-go"
)

// PyroscopeProfiler holds the running continuous profiler.
type PyroscopeProfiler struct {
	profiler *pyroscope.Profiler
}

// StartPyroscope starts continuous profiling when
// ENABLE_CONTINUOUS_PROFILING=true. Configuration comes from
// PYROSCOPE_SERVER_URL, PYROSCOPE_ENVIRONMENT and APP_VERSION. Returns
// (nil, nil) when disabled.
func StartPyroscope(serviceName string) (*PyroscopeProfiler, error) {
	if os.Getenv("ENABLE_CONTINUOUS_PROFILING") != "true" {
		return nil, nil
	}

	serverURL := os.Getenv("PYROSCOPE_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://pyroscope:4040"
	}

	environment := os.Getenv("PYROSCOPE_ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	version := os.Getenv("APP_VERSION")
	if version == "" {
		version = "unknown"
	}

	config := pyroscope.Config{
		ApplicationName: fmt.Sprintf("commercetrack.%s", serviceName),
		ServerAddress:   serverURL,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"environment": environment,
			"version":     version,
			"hostname":    getHostname(),
			"go_version":  runtime.Version(),
		},
	}

	profiler, err := pyroscope.Start(config)
	if err != nil {
		return nil, fmt.Errorf("start pyroscope profiler: %w", err)
	}

	return &PyroscopeProfiler{profiler: profiler}, nil
}

// Stop gracefully stops the profiler. Safe on a nil receiver.
func (p *PyroscopeProfiler) Stop() error {
	if p == nil || p.profiler == nil {
		return nil
	}
	return p.profiler.Stop()
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
