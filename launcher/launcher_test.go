package launcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/launcher"
	"github.com/dlerazeezcore/the-book-platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsWebExitStatus(t *testing.T) {
	l, err := launcher.New(logger.Discard, launcher.Config{
		GatewayCommand:    []string{os.Args[0]},
		WebCommand:        []string{os.Args[0]},
		Env:               env.FromMap(map[string]string{"TEST_MAIN": "exit-3"}),
		SignalGracePeriod: time.Second,
	})
	require.NoError(t, err)

	status, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, status)
}

func TestBackendURLDefaultsWhenUnset(t *testing.T) {
	dir := t.TempDir()
	gatewayEnvFile := filepath.Join(dir, "gateway-env")

	l, err := launcher.New(logger.Discard, launcher.Config{
		GatewayCommand: []string{os.Args[0], gatewayEnvFile, "AVAILABILITY_BACKEND_URL"},
		WebCommand:     []string{os.Args[0], filepath.Join(dir, "web-env"), "AVAILABILITY_BACKEND_URL"},
		Env:            env.FromMap(map[string]string{"TEST_MAIN": "write-env"}),
	})
	require.NoError(t, err)

	status, err := l.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, status)

	require.Eventually(t, func() bool {
		got, err := os.ReadFile(gatewayEnvFile)
		return err == nil && string(got) == launcher.DefaultBackendURL
	}, 5*time.Second, 50*time.Millisecond, "gateway should observe the default backend URL")
}

func TestBackendURLPassesThroughWhenSet(t *testing.T) {
	dir := t.TempDir()
	gatewayEnvFile := filepath.Join(dir, "gateway-env")

	l, err := launcher.New(logger.Discard, launcher.Config{
		GatewayCommand: []string{os.Args[0], gatewayEnvFile, "AVAILABILITY_BACKEND_URL"},
		WebCommand:     []string{os.Args[0], filepath.Join(dir, "web-env"), "AVAILABILITY_BACKEND_URL"},
		Env: env.FromMap(map[string]string{
			"TEST_MAIN":                "write-env",
			"AVAILABILITY_BACKEND_URL": "http://example.com:9999",
		}),
	})
	require.NoError(t, err)

	_, err = l.Run(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := os.ReadFile(gatewayEnvFile)
		return err == nil && string(got) == "http://example.com:9999"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestPortDefaultsAndOverrides(t *testing.T) {
	for _, tc := range []struct {
		name, set, want string
	}{
		{name: "default", set: "", want: launcher.DefaultPort},
		{name: "override", set: "9000", want: "9000"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			webEnvFile := filepath.Join(dir, "web-env")

			environ := env.FromMap(map[string]string{"TEST_MAIN": "write-env"})
			if tc.set != "" {
				environ.Set("PORT", tc.set)
			}

			l, err := launcher.New(logger.Discard, launcher.Config{
				GatewayCommand: []string{os.Args[0], filepath.Join(dir, "gateway-env"), "PORT"},
				WebCommand:     []string{os.Args[0], webEnvFile, "PORT"},
				Env:            environ,
			})
			require.NoError(t, err)

			_, err = l.Run(context.Background())
			require.NoError(t, err)

			got, err := os.ReadFile(webEnvFile)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestStopTerminatesBothProcesses(t *testing.T) {
	l, err := launcher.New(logger.Discard, launcher.Config{
		GatewayCommand:    []string{os.Args[0]},
		WebCommand:        []string{os.Args[0]},
		Env:               env.FromMap(map[string]string{"TEST_MAIN": "sleeper"}),
		SignalGracePeriod: time.Second,
	})
	require.NoError(t, err)

	done := make(chan int, 1)
	go func() {
		status, _ := l.Run(context.Background())
		done <- status
	}()

	// Let both children start before asking for shutdown
	time.Sleep(500 * time.Millisecond)
	l.Stop()

	select {
	case status := <-done:
		assert.NotEqual(t, 0, status, "an interrupted sleeper should not exit 0")
	case <-time.After(10 * time.Second):
		t.Fatal("launcher did not stop")
	}
}

func TestStopWithAlreadyExitedGatewayIsHarmless(t *testing.T) {
	dir := t.TempDir()

	l, err := launcher.New(logger.Discard, launcher.Config{
		// The gateway exits immediately; Stop must not fail because of it.
		GatewayCommand: []string{os.Args[0]},
		WebCommand:     []string{os.Args[0], filepath.Join(dir, "web-env"), "PORT"},
		Env:            env.FromMap(map[string]string{"TEST_MAIN": "exit-0"}),
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := l.Run(context.Background())
		assert.NoError(t, err)
	}()

	time.Sleep(200 * time.Millisecond)
	l.Stop()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("launcher did not finish")
	}
}
