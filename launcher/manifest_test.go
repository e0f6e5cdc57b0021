package launcher_test

import (
	"testing"

	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/launcher"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestApplyInterpolatesAndSplits(t *testing.T) {
	m, err := launcher.ParseManifest([]byte(`
env:
  AVAILABILITY_BACKEND_URL: http://127.0.0.1:5050
gateway:
  command: the-book gateway --bind "127.0.0.1:5050"
web:
  command: the-book web --port ${PORT:-8000}
`))
	require.NoError(t, err)

	conf := launcher.Config{Env: env.New()}
	require.NoError(t, m.Apply(&conf, nil))

	if diff := cmp.Diff([]string{"the-book", "gateway", "--bind", "127.0.0.1:5050"}, conf.GatewayCommand); diff != "" {
		t.Errorf("GatewayCommand diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"the-book", "web", "--port", "8000"}, conf.WebCommand); diff != "" {
		t.Errorf("WebCommand diff (-want +got):\n%s", diff)
	}

	url, _ := conf.Env.Get("AVAILABILITY_BACKEND_URL")
	assert.Equal(t, "http://127.0.0.1:5050", url)
}

func TestManifestEnvDoesNotOverrideCaller(t *testing.T) {
	m, err := launcher.ParseManifest([]byte(`
env:
  PORT: "8000"
web:
  command: the-book web --port ${PORT}
`))
	require.NoError(t, err)

	conf := launcher.Config{Env: env.FromMap(map[string]string{"PORT": "9000"})}
	require.NoError(t, m.Apply(&conf, nil))

	assert.Equal(t, []string{"the-book", "web", "--port", "9000"}, conf.WebCommand)
}

func TestManifestKeepsExistingCommandsWhenAbsent(t *testing.T) {
	m, err := launcher.ParseManifest([]byte(`
gateway:
  command: ./gateway.sh
`))
	require.NoError(t, err)

	conf := launcher.Config{
		GatewayCommand: []string{"a"},
		WebCommand:     []string{"b"},
		Env:            env.New(),
	}
	require.NoError(t, m.Apply(&conf, nil))

	assert.Equal(t, []string{"./gateway.sh"}, conf.GatewayCommand)
	assert.Equal(t, []string{"b"}, conf.WebCommand)
}

func TestManifestRejectsUnparseableCommand(t *testing.T) {
	m, err := launcher.ParseManifest([]byte(`
web:
  command: 'the-book web --port "8000'
`))
	require.NoError(t, err)

	conf := launcher.Config{Env: env.New()}
	assert.Error(t, m.Apply(&conf, nil))
}
