package server

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avendahl/podium/internal/session"
)

// Instruments extends the per-session counters with connection
// lifecycle counts. metrics.Collector satisfies it.
type Instruments interface {
	session.Instruments
	SessionOpened()
	SessionClosed()
}

type nopInstruments struct{ session.NopInstruments }

func (nopInstruments) SessionOpened() {}
func (nopInstruments) SessionClosed() {}

// Options wires the handler to the rest of the application. Zero
// fields are filled with safe defaults by Handler.
type Options struct {
	Logger      *slog.Logger
	BaseContext context.Context

	// Session is the per-connection config template; the handler
	// assigns each connection its own SessionID.
	Session       session.Config
	Collaborators session.Collaborators

	Outputs     OutputStore
	Instruments Instruments
	Gatherer    prometheus.Gatherer
	Warnings    func() []string

	MediaFrameMaxBytes   int
	MediaFramesPerSecond int
}

func Handler(staticFS fs.FS, opts Options) (http.Handler, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Instruments == nil {
		opts.Instruments = nopInstruments{}
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()

	registerWSRoute(mux, opts)
	registerAPIRoutes(mux, opts)
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	fileServer := http.FileServer(http.FS(staticFS))
	mux.HandleFunc("/", serveSPA(fileServer))

	return mux, nil
}

func serveSPA(fileServer http.Handler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" || r.URL.Path == "/metrics" {
			http.NotFound(w, r)
			return
		}

		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if cleanPath == "." || cleanPath == "" {
			r.URL.Path = "/"
		} else if !strings.Contains(cleanPath, ".") {
			r.URL.Path = "/index.html"
		} else {
			r.URL.Path = "/" + cleanPath
		}

		fileServer.ServeHTTP(w, r)
	}
}
