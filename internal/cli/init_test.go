package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/config"
	mirror "ledger/internal/sheets/memory"
	"ledger/internal/storage/memory"
)

type fakeServer struct {
	listenErr error
	stop      chan struct{}
	shutdowns int
}

func newFakeServer() *fakeServer {
	return &fakeServer{stop: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdowns++
	select {
	case <-f.stop:
	default:
		close(f.stop)
	}
	return nil
}

func TestServeUntilDoneStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := newFakeServer()

	done := make(chan error, 1)
	go func() { done <- ServeUntilDone(ctx, srv, time.Second) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeUntilDone did not return after cancel")
	}
	assert.Equal(t, 1, srv.shutdowns)
}

func TestServeUntilDoneReturnsListenError(t *testing.T) {
	srv := newFakeServer()
	srv.listenErr = errors.New("address already in use")

	err := ServeUntilDone(context.Background(), srv, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
	assert.Equal(t, 1, srv.shutdowns)
}

func clearEnv(t *testing.T, keys ...string) {
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadConfigRunsValidator(t *testing.T) {
	clearEnv(t, "CONFIG_PATH", "JWT_SECRET", "AMQP_URL")
	t.Setenv("DATA_BACKEND", config.BackendMemory)

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, cfg.DataBackend)

	_, err = LoadConfig((*config.Config).ValidateServer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
}

func TestOpenBackendAndMirror(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{DataBackend: config.BackendMemory}

	res, err := OpenBackend(ctx, cfg)
	require.NoError(t, err)
	defer res.Cleanup()
	assert.IsType(t, &memory.Store{}, res.Store)

	m, err := OpenMirror(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &mirror.Mirror{}, m)

	_, err = OpenBackend(ctx, &config.Config{DataBackend: "nope"})
	assert.Error(t, err)
}
