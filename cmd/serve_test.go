//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodcover/internal/config"
)

// getFreePort returns a free TCP port on localhost.
func getFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func TestResolvePort(t *testing.T) {
	assert.Equal(t, 9090, resolvePort(9090, 8080))
	assert.Equal(t, 8080, resolvePort(0, 8080))
}

func TestStartServer_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	port := getFreePort(t)
	errCh := make(chan error, 1)
	go func() { errCh <- startServer(ctx, handler, port) }()

	var ready bool
	for i := 0; i < 50; i++ {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if err == nil {
			resp.Body.Close()
			ready = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, ready, "server did not become ready in time")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestStartServer_PortInUse(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = startServer(ctx, http.NotFoundHandler(), l.Addr().(*net.TCPAddr).Port)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server listen")
}

func TestInitEngine_InvalidConfig(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}
	_, err := initEngine(context.Background())
	assert.Error(t, err)
}

func TestInitEngine_SQLite(t *testing.T) {
	cfg = testConfig(t)

	env, err := initEngine(context.Background())
	require.NoError(t, err)
	defer env.Close()

	require.NotNil(t, env.Engine)
	require.NotNil(t, env.Metrics)
	require.NotNil(t, env.Checker)
	assert.Equal(t, "aaaaa-aa", string(env.Engine.Guard.Admin()))
	assert.False(t, env.Engine.Oracle.TimerRunning())

	oc := env.Engine.Oracle.Configuration()
	assert.Equal(t, uint64(600), oc.UpdateIntervalSecs)
	assert.Contains(t, principalStrings(oc.AuthorizedPrincipals), "aaaaa-aa")
	assert.Contains(t, principalStrings(oc.AuthorizedPrincipals), "feeder")
}

func TestInitPublisher_NoBroker(t *testing.T) {
	cfg = testConfig(t)
	pub, err := initPublisher(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pub)
	pub.Close()
}

func TestOracleConfig_Overrides(t *testing.T) {
	cfg = &config.Config{Oracle: config.OracleConfig{
		BaseURL:              "https://gage.example.com/iv",
		UpdateIntervalSecs:   120,
		MaxRetries:           5,
		AuthorizedPrincipals: []string{"feeder", ""},
	}}
	oc := oracleConfig()
	assert.Equal(t, "https://gage.example.com/iv", oc.BaseURL)
	assert.Equal(t, uint64(120), oc.UpdateIntervalSecs)
	assert.Equal(t, uint32(5), oc.MaxRetries)
	assert.Equal(t, []string{"feeder"}, principalStrings(oc.AuthorizedPrincipals))
}

func TestOracleConfig_Defaults(t *testing.T) {
	cfg = &config.Config{}
	oc := oracleConfig()
	assert.NotEmpty(t, oc.BaseURL)
	assert.NotZero(t, oc.UpdateIntervalSecs)
	assert.Empty(t, oc.AuthorizedPrincipals)
}

func TestPrincipals_SkipsBlank(t *testing.T) {
	assert.Empty(t, principals(nil))
	assert.Equal(t, []string{"a", "b"}, principalStrings(principals([]string{"a", "", "b"})))
}
