package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "uses defaults with empty file",
			yaml: "",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "/dev/video2", c.CameraDevice)
				assert.Equal(t, 0.6, c.MatchThreshold)
				assert.Equal(t, 30, c.DarkThreshold)
				assert.Equal(t, "yunet", c.Detector)
				assert.Equal(t, "dlib", c.Encoder)
				assert.Equal(t, 2*time.Second, c.SessionTimeout)
				assert.Equal(t, 320, c.WorkWidth)
				assert.True(t, c.IsProduction())
			},
		},
		{
			name: "yaml overrides defaults",
			yaml: "camera_device: /dev/video0\nmatch_threshold: 0.45\nsession_timeout: 3s\ndetector: dlib\n",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "/dev/video0", c.CameraDevice)
				assert.Equal(t, 0.45, c.MatchThreshold)
				assert.Equal(t, 3*time.Second, c.SessionTimeout)
				assert.Equal(t, "dlib", c.Detector)
			},
		},
		{
			name: "env overrides yaml",
			yaml: "camera_device: /dev/video0\ndark_threshold: 10\n",
			envVars: map[string]string{
				"YAHALLO_CAMERA_DEVICE":  "/dev/video4",
				"YAHALLO_DARK_THRESHOLD": "75",
				"YAHALLO_ENCODER":        "sface",
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "/dev/video4", c.CameraDevice)
				assert.Equal(t, 75, c.DarkThreshold)
				assert.Equal(t, "sface", c.Encoder)
			},
		},
		{
			name:    "dark threshold above 100",
			envVars: map[string]string{"YAHALLO_DARK_THRESHOLD": "101"},
			wantErr: true,
		},
		{
			name:    "negative dark threshold",
			yaml:    "dark_threshold: -1\n",
			wantErr: true,
		},
		{
			name:    "negative match threshold",
			yaml:    "match_threshold: -0.1\n",
			wantErr: true,
		},
		{
			name:    "unknown detector",
			yaml:    "detector: haar\n",
			wantErr: true,
		},
		{
			name:    "sface needs yunet",
			yaml:    "detector: dlib\nencoder: sface\n",
			wantErr: true,
		},
		{
			name:    "unknown metric",
			yaml:    "match_metric: manhattan\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			yaml:    "camera_device: [\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			path := writeConfig(t, tt.yaml+"faces_file: "+filepath.Join(t.TempDir(), "faces.json")+"\n")

			cfg, err := Load(path)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad_IgnoresUnprefixedEnv(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("DETECTOR", "dlib")
	t.Setenv("FACES_FILE", "/tmp/elsewhere.json")
	t.Setenv("YAHALLO_LOG_LEVEL", "debug")
	facesFile := filepath.Join(t.TempDir(), "faces.json")
	path := writeConfig(t, "faces_file: "+facesFile+"\n")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "yunet", cfg.Detector)
	assert.Equal(t, facesFile, cfg.FacesFile)
	assert.Equal(t, "debug", cfg.LogLevel, "prefixed variables still apply")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_FromEnvPath(t *testing.T) {
	path := writeConfig(t, "camera_device: /dev/video9\nfaces_file: "+filepath.Join(t.TempDir(), "f.json")+"\n")
	t.Setenv(ConfigPathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/video9", cfg.CameraDevice)
}

func TestValidate_FacesFileIsDir(t *testing.T) {
	cfg := Default()
	cfg.FacesFile = t.TempDir()

	err := cfg.Validate()

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "faces_file", vErr.Field)
}

func TestValidate_Boundaries(t *testing.T) {
	for _, dark := range []int{0, 100} {
		cfg := Default()
		cfg.FacesFile = filepath.Join(t.TempDir(), "faces.json")
		cfg.DarkThreshold = dark
		assert.NoError(t, cfg.Validate(), "dark threshold %d", dark)
	}

	cfg := Default()
	cfg.FacesFile = filepath.Join(t.TempDir(), "faces.json")
	cfg.MatchThreshold = 0
	assert.NoError(t, cfg.Validate())

	cfg.SessionTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"development", "development", true},
		{"production", "production", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Env: tt.env}
			assert.Equal(t, tt.want, c.IsDevelopment())
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	newLogger(&buf, "production", "").Info("hello", "k", "v")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "production logs are JSON")

	buf.Reset()
	newLogger(&buf, "production", "").Debug("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	newLogger(&buf, "production", "debug").Debug("shown")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	newLogger(&buf, "development", "warn").Info("hidden")
	assert.Empty(t, buf.String())
}
