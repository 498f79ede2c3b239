package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthcap/internal/capture"
	"depthcap/internal/config"
	dclog "depthcap/internal/log"
	"depthcap/internal/permission"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "depthcap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dclog.Reconfigure(dclog.Config{Output: &bytes.Buffer{}})

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestRun_SyntheticStopsAfterDuration(t *testing.T) {
	path := writeConfig(t, `
platform: synthetic
permission:
  mode: granted
camera:
  fps: 100
`)
	_, err := execute(t, "run", "--config", path, "--duration", "200ms")
	assert.NoError(t, err)
}

func TestRun_DeniedExitsWithError(t *testing.T) {
	path := writeConfig(t, `
permission:
  mode: denied
`)
	_, err := execute(t, "run", "--config", path, "--duration", "2s")
	require.Error(t, err)

	var terr *capture.TerminalError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, capture.StateUnauthorized, terr.State)
	assert.ErrorIs(t, err, permission.ErrPermissionDenied)
}

func TestRun_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "platform: avfoundation\n")
	_, err := execute(t, "run", "--config", path)
	assert.Error(t, err)
}

func TestDevices_Synthetic(t *testing.T) {
	path := writeConfig(t, "platform: synthetic\n")

	out, err := execute(t, "devices", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "synthetic://dual")
	assert.True(t, strings.Contains(out, "video,depth"))

	out, err = execute(t, "devices", "--config", path, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"supports_depth": true`)
}

func TestNewPlatform_PermissionModes(t *testing.T) {
	tests := []struct {
		mode string
		want permission.AuthorizationState
	}{
		{config.PermissionGranted, permission.StateAuthorized},
		{config.PermissionDenied, permission.StateDenied},
		{config.PermissionPrompt, permission.StateNotDetermined},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := config.Default()
			cfg.Permission.Mode = tt.mode

			p, err := newPlatform(cfg, dclog.Nop())
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.authorizer.Status(context.Background()))
		})
	}
}

func TestAnswerPrompt(t *testing.T) {
	auth := permission.NewPromptAuthorizer()
	done := make(chan struct{})
	var out bytes.Buffer
	go func() {
		defer close(done)
		answerPrompt(context.Background(), auth, strings.NewReader("y\n"), &out)
	}()

	granted, err := auth.Request(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)
	<-done
	assert.Contains(t, out.String(), "[y/N]")
}
