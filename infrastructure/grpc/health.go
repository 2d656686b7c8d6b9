package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"secret-santa/contract"
)

// ServiceName is the health service name reported next to the overall ("") status.
const ServiceName = "santa"

var _ contract.Worker = (*HealthWorker)(nil)

// HealthWorker serves the standard gRPC health protocol.
// The status follows ready, sampled every interval: NOT_SERVING while it reports false.
type HealthWorker struct {
	address  string
	interval time.Duration
	ready    func() bool
	health   *health.Server
	log      *slog.Logger
}

func NewHealthWorker(address string, interval time.Duration, ready func() bool, log *slog.Logger) *HealthWorker {
	return &HealthWorker{
		address:  address,
		interval: interval,
		ready:    ready,
		health:   health.NewServer(),
		log:      log,
	}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", w.address)
	if err != nil {
		return err
	}
	return w.Serve(ctx, listener)
}

// Serve answers health checks on listener until ctx is done.
func (w *HealthWorker) Serve(ctx context.Context, listener net.Listener) error {
	server := gogrpc.NewServer()
	grpc_health_v1.RegisterHealthServer(server, w.health)
	w.update()

	serveErr := make(chan error, 1)
	go func() {
		w.log.Info("Starting gRPC health server", "address", listener.Addr().String())
		serveErr <- server.Serve(listener)
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.health.Shutdown()
			server.GracefulStop()
			return ctx.Err()
		case err := <-serveErr:
			return err
		case <-ticker.C:
			w.update()
		}
	}
}

func (w *HealthWorker) update() {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !w.ready() {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	w.health.SetServingStatus("", status)
	w.health.SetServingStatus(ServiceName, status)
}
