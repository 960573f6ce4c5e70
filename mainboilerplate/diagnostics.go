package mainboilerplate

import (
	"net"
	"net/http"
	_ "net/http/pprof" // Import for /debug/pprof

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// DiagnosticsConfig configures pull-based application metrics, debugging and diagnostics.
type DiagnosticsConfig struct {
	Port string `long:"port" env:"PORT" description:"Port for serving /debug/metrics and /debug/pprof. Diagnostics are not served if empty"`
}

// InitDiagnostics begins serving metrics and debugging services registered
// on the default HTTPMux, if a Port is configured. The returned listener
// (or nil) should be closed on exit.
func InitDiagnostics(cfg DiagnosticsConfig) net.Listener {
	if cfg.Port == "" {
		return nil
	}
	// Package "net/http/pprof" serves /debug/pprof/.

	// Serve a liveness check at /debug/ready.
	http.HandleFunc("/debug/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	// Serve Prometheus metrics at /debug/metrics.
	http.Handle("/debug/metrics", promhttp.Handler())

	var ln, err = net.Listen("tcp", ":"+cfg.Port)
	Must(err, "failed to listen for diagnostics", "port", cfg.Port)

	go func() {
		if err := http.Serve(ln, nil); err != nil {
			log.WithField("err", err).Debug("diagnostics server stopped")
		}
	}()
	log.WithField("addr", ln.Addr().String()).Info("serving diagnostics")

	return ln
}

// Must panics if |err| is non-nil, supplying |msg| and |extra| as
// formatter and fields of the generated panic.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var f = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		f[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(f).Panic(msg)
}
