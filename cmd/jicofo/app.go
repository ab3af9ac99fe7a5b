package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/jitsi/jicofo/internal/bus"
	"github.com/jitsi/jicofo/internal/logging"
	"github.com/jitsi/jicofo/internal/redistribute"
	"github.com/jitsi/jicofo/internal/store"
)

// App bundles jicofo's top-level long-running dependencies and coordinates
// graceful shutdown: cancel the redistributor's scheduled loop, best-effort
// expire every live conference, and close the bus (§5 "Shutdown cancels
// scheduled tasks..."). Grounded on the teacher's srv.Shutdown +
// signal-driven drain, generalized from "drain one HTTP server" to
// "drain the whole dependency bag".
type App struct {
	httpServer    *http.Server
	grpcServer    *grpc.Server
	store         *store.Store
	redistributor *redistribute.Redistributor
	bus           *bus.Service
}

// Shutdown drains every long-running component in order: stop accepting new
// HTTP/gRPC work, stop the automatic redistribution loop, terminate every
// live conference, stop the store's idle-expiry sweeper, and close the bus.
// Best-effort throughout: the first error encountered is returned, but every
// step still runs so a stuck component can't prevent the others from
// draining.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.httpServer != nil {
		note(a.httpServer.Shutdown(ctx))
	}
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
	if a.redistributor != nil {
		a.redistributor.Stop()
	}
	if a.store != nil {
		for _, o := range a.store.All() {
			o.Shutdown(ctx, "process-shutdown")
		}
		a.store.Stop()
	}
	if a.bus != nil {
		note(a.bus.Close())
	}

	logging.Info(context.Background(), "jicofo shutdown complete", zap.Bool("clean", firstErr == nil))
	return firstErr
}
