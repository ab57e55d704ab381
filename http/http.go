package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// ShutdownTimeout is the time given to servers to finish serving in flight
// requests once the context passed to ListenAndServe is canceled.
var ShutdownTimeout = 10 * time.Second

// ListenAndServe runs the given servers until ctx is canceled, then shuts
// them down.
func ListenAndServe(ctx context.Context, servers ...*http.Server) {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logs.Warn(errors.New("shutting down the server failed").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}
	}()

	var wg sync.WaitGroup

	for _, s := range servers {
		wg.Add(1)

		go func(s *http.Server) {
			defer wg.Done()
			serve(s)
		}(s)
	}

	wg.Wait()
}

func serve(s *http.Server) {
	logs.WithTag("addr", s.Addr).Info("starting server")

	switch err := s.ListenAndServe(); err {
	case nil, http.ErrServerClosed, context.Canceled:
		logs.WithTag("addr", s.Addr).Info("stopping server")

	default:
		logs.Warn(errors.New("server stopped").
			WithTag("addr", s.Addr).
			Wrap(err))
	}
}

// MetricsPathFormatter returns empty string on HTTP 301, 400, 404 or 405
// statusCode. Tile raster paths are reported under their common prefix.
func MetricsPathFormatter(statusCode int, path string) string {
	if statusCode == http.StatusMovedPermanently ||
		statusCode == http.StatusBadRequest ||
		statusCode == http.StatusNotFound ||
		statusCode == http.StatusMethodNotAllowed {
		return ""
	}

	if strings.HasPrefix(path, TilesPath) {
		return TilesPath
	}
	return path
}
