package options

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stronnag/altimap/pkg/render"
)

func envmap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestPrecedence(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "altimap.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(`
radius: 1000
step: 25
workers: 3
gradient: viridis
delay: 250ms
service: opentopo
`), 0644))

	s := Defaults()
	require.NoError(t, ReadConfigFile(fn, &s))
	assert.Equal(t, 1000.0, s.Radius)
	assert.Equal(t, 250*time.Millisecond, s.Delay)
	assert.Equal(t, "heights.db", s.Output)

	env := envmap(map[string]string{
		"ALTIMAP_STEP":    "30",
		"ALTIMAP_WORKERS": "4",
		"ALTIMAP_OPTS":    "-workers 5  -dms",
	})
	rest, err := Parse(APP, []string{"-r", "200", "--", "-33.5", "151.25", "out.png"}, env, &s, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"-33.5", "151.25", "out.png"}, rest)

	// command line
	assert.Equal(t, 200.0, s.Radius)
	// environment
	assert.Equal(t, 30.0, s.Step)
	// $ALTIMAP_OPTS beats the environment
	assert.Equal(t, 5, s.Workers)
	assert.True(t, s.Dms)
	// config file
	assert.Equal(t, "viridis", s.Gradient)
	assert.Equal(t, "opentopo", s.Service)
	assert.Equal(t, 250*time.Millisecond, s.Delay)
	// default
	assert.Equal(t, Defaults().Timeout, s.Timeout)

	require.NoError(t, s.Positional(rest))
	assert.Equal(t, -33.5, s.Lat)
	assert.Equal(t, 151.25, s.Lon)
	assert.Equal(t, "out.png", s.Image)
}

func TestMissingConfigFile(t *testing.T) {
	s := Defaults()
	require.NoError(t, ReadConfigFile(filepath.Join(t.TempDir(), "none.yaml"), &s))
	assert.Equal(t, Defaults(), s)

	fn := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("radius: [1, 2"), 0644))
	assert.Error(t, ReadConfigFile(fn, &s))
}

func TestParseErrors(t *testing.T) {
	s := Defaults()
	_, err := Parse(APP, []string{"-nosuch"}, envmap(nil), &s, io.Discard)
	assert.Error(t, err)

	s = Defaults()
	_, err = Parse(APP, nil, envmap(map[string]string{"ALTIMAP_RADIUS": "wide"}), &s, io.Discard)
	assert.ErrorContains(t, err, "ALTIMAP_RADIUS")

	s = Defaults()
	_, err = Parse(APP, nil, envmap(map[string]string{"ALTIMAP_OPTS": "-step"}), &s, io.Discard)
	assert.ErrorContains(t, err, ENVOPTS)
}

func TestPositional(t *testing.T) {
	var s Settings
	require.NoError(t, s.Positional([]string{"44.9,6.25"}))
	assert.Equal(t, 44.9, s.Lat)
	assert.Equal(t, 6.25, s.Lon)
	assert.Empty(t, s.Image)

	require.NoError(t, s.Positional([]string{"33:52:00S", "151:15:00E", "map.png"}))
	assert.InDelta(t, -33.866666, s.Lat, 1e-5)
	assert.Equal(t, 151.25, s.Lon)
	assert.Equal(t, "map.png", s.Image)

	assert.Error(t, s.Positional(nil))
	assert.Error(t, s.Positional([]string{"44.9"}))
	assert.Error(t, s.Positional([]string{"north", "6"}))
	assert.Error(t, s.Positional([]string{"44.9", "6", "a.png", "b.png"}))
}

func TestValidate(t *testing.T) {
	good := Defaults()
	good.Lat, good.Lon = 44.9, 6.25
	require.NoError(t, good.Validate())

	for name, mod := range map[string]func(*Settings){
		"radius":   func(s *Settings) { s.Radius = 0 },
		"step":     func(s *Settings) { s.Step = -1 },
		"size":     func(s *Settings) { s.Radius, s.Step = 20000, 1 },
		"lat":      func(s *Settings) { s.Lat = 91 },
		"service":  func(s *Settings) { s.Service = "nasa" },
		"gradient": func(s *Settings) { s.Image = "x.png"; s.Gradient = "plaid" },
		"output":   func(s *Settings) { s.Output = "" },
		"workers":  func(s *Settings) { s.Workers = 0 },
		"retries":  func(s *Settings) { s.Retries = -1 },
		"scale":    func(s *Settings) { s.Scale = 0 },
		"overlay":  func(s *Settings) { s.Overlay = true },
	} {
		s := good
		mod(&s)
		assert.Error(t, s.Validate(), name)
	}
}

func TestConversions(t *testing.T) {
	s := Defaults()
	s.Lat, s.Lon = 1, 2
	s.Batch = 20
	s.Retries = 2
	s.Backoff = time.Minute
	s.Transparent = true

	spec := s.GridSpec()
	assert.Equal(t, 500.0, spec.Radius)
	assert.Equal(t, 2.0, spec.Lon)

	cfg := s.ClientConfig()
	assert.Equal(t, 20, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Backoff.Initial)
	assert.GreaterOrEqual(t, cfg.Backoff.Max, time.Minute)
	assert.Negative(t, cfg.MinDelay)

	s.Delay = time.Second
	assert.Equal(t, time.Second, s.ClientConfig().MinDelay)

	ro := s.RenderOptions()
	assert.Equal(t, render.Transparent, ro.NoData)
	assert.Equal(t, "gray", ro.Gradient)

	svc, err := s.NewService()
	require.NoError(t, err)
	assert.Equal(t, "ign", svc.Name())
}

func TestVlog(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	saved := Config
	defer func() { Config = saved }()

	Config.Verbose = 1
	Vlog(0, "shown %d", 1)
	Vlog(1, "hidden %d", 2)
	assert.Contains(t, buf.String(), "shown 1")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestLoadDotEnv(t *testing.T) {
	fn := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(fn, []byte("ALTIMAP_TEST_DOTENV=7\n"), 0644))
	t.Setenv("ALTIMAP_TEST_DOTENV", "")
	os.Unsetenv("ALTIMAP_TEST_DOTENV")
	require.NoError(t, LoadDotEnv(fn))
	assert.Equal(t, "7", os.Getenv("ALTIMAP_TEST_DOTENV"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}
