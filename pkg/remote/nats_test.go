package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runNATSServer(t *testing.T) *server.Server {
	t.Helper()
	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go srv.Start()
	require.True(t, srv.ReadyForConnections(5*time.Second), "nats server did not start")
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSExecutor(t *testing.T) {
	srv := runNATSServer(t)

	workerConn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer workerConn.Close()

	reg := NewRegistry()
	reg.Register("double", doubleSamples)
	reg.Register("fail", func(context.Context, Args) (uint64, error) {
		return 0, errors.New("kernel failed")
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := ServeNATS(ctx, workerConn, "", "", reg)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, workerConn.Flush())

	clientConn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer clientConn.Close()

	exec := NewNATSExecutor(clientConn, "", 5*time.Second)
	v, err := exec.Submit(ctx, "double", Args{SampleCount: 50}).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), v)

	_, err = exec.Submit(ctx, "fail", Args{}).Await(ctx)
	assert.ErrorIs(t, err, ErrRemote)

	_, err = exec.Submit(ctx, "missing", Args{}).Await(ctx)
	assert.ErrorIs(t, err, ErrRemote)
}

func TestNATSExecutorNoResponders(t *testing.T) {
	srv := runNATSServer(t)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	exec := NewNATSExecutor(nc, "mcpi.nobody", time.Second)
	_, err = exec.Submit(context.Background(), "double", Args{}).Await(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	nc.Close()
	_, err = exec.Submit(context.Background(), "double", Args{}).Await(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
