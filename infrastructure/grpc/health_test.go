package grpc

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthWorker_Follows_Readiness(t *testing.T) {
	req := require.New(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)

	var ready atomic.Bool
	ready.Store(true)
	worker := NewHealthWorker(listener.Addr().String(), 20*time.Millisecond, ready.Load, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Serve(ctx, listener) }()

	conn, err := gogrpc.NewClient(listener.Addr().String(), gogrpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	defer conn.Close()
	client := grpc_health_v1.NewHealthClient(conn)

	status := func() grpc_health_v1.HealthCheckResponse_ServingStatus {
		callCtx, callCancel := context.WithTimeout(context.Background(), time.Second)
		defer callCancel()
		resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			return grpc_health_v1.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	// Given a ready bot
	req.Eventually(func() bool { return status() == grpc_health_v1.HealthCheckResponse_SERVING },
		2*time.Second, 20*time.Millisecond)

	// When it stops being ready
	ready.Store(false)

	// Then
	req.Eventually(func() bool { return status() == grpc_health_v1.HealthCheckResponse_NOT_SERVING },
		2*time.Second, 20*time.Millisecond)

	cancel()
	req.ErrorIs(<-done, context.Canceled)
}
