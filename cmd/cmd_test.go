package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/config"
	"github.com/stretchr/testify/require"
)

func writeRedPNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	path := filepath.Join(dir, "red.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(args...)
	require.NoError(t, err, out)
	return out
}

func execute(args ...string) (string, error) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVerifyThenHistory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEDIVERIFY_DATA_DIR", dir)
	t.Setenv("MEDIVERIFY_PROVIDER", "mock")
	img := writeRedPNG(t, dir)

	out := run(t, "verify", img, "--delay", "0s")
	require.Contains(t, out, "Confidence:")
	require.Contains(t, out, "Identity:   guest_")

	out = run(t, "verify", img, "--capture", "--delay", "0s")
	require.Contains(t, out, "Confidence:")

	out = run(t, "history", "list")
	require.Contains(t, out, "Scans:       2")
	require.Contains(t, out, "[2]")

	out = run(t, "history", "export", "--format", "csv")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
}

func TestHistoryListEmpty(t *testing.T) {
	t.Setenv("MEDIVERIFY_DATA_DIR", t.TempDir())
	out := run(t, "history", "list", "--identity", "guest_1")
	require.Contains(t, out, "No scans yet.")
}

func TestHistoryRejectsReservedIdentity(t *testing.T) {
	t.Setenv("MEDIVERIFY_DATA_DIR", t.TempDir())
	for _, id := range []string{"userID", "darkMode", "users", "communityPosts"} {
		_, err := execute("history", "list", "--identity", id)
		require.Error(t, err, id)
		_, err = execute("history", "export", "--identity", id)
		require.Error(t, err, id)
	}
}

func TestVerifyRejectsUnknownFacing(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEDIVERIFY_DATA_DIR", dir)
	t.Setenv("MEDIVERIFY_PROVIDER", "mock")
	img := writeRedPNG(t, dir)

	out, err := execute("verify", img, "--capture", "--facing", "sideways", "--delay", "0s")
	require.Error(t, err)
	require.NotContains(t, out, "Confidence:")

	out = run(t, "verify", img, "--capture", "--facing", "user", "--delay", "0s")
	require.Contains(t, out, "Confidence:")
}

func TestWorkflowOptionsZeroDelay(t *testing.T) {
	tests := []struct {
		name  string
		delay time.Duration
		want  time.Duration
	}{
		{"zero disables", 0, -1},
		{"configured", 150 * time.Millisecond, 150 * time.Millisecond},
		{"default", config.Default().Analysis.Delay, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Analysis.Delay = tt.delay
			opts := workflowOptions(cfg)
			require.Equal(t, tt.want, opts.AnalysisDelay)
			require.Equal(t, cfg.Analysis.Timeout, opts.AnalysisTimeout)
		})
	}
}

func TestTokenRequiresSecret(t *testing.T) {
	t.Setenv("MEDIVERIFY_DATA_DIR", t.TempDir())
	t.Setenv("MEDIVERIFY_JWT_SECRET", "")
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token", "user-1"})
	require.Error(t, root.Execute())
}

func TestToken(t *testing.T) {
	t.Setenv("MEDIVERIFY_DATA_DIR", t.TempDir())
	t.Setenv("MEDIVERIFY_JWT_SECRET", "secret")
	out := run(t, "token", "user-1")
	require.Equal(t, 3, len(strings.Split(strings.TrimSpace(out), ".")))
}
