package app

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"v2scrape/collector/model"
	"v2scrape/internal/shared/types"
)

type staticFetcher map[string]string

func (f staticFetcher) Fetch(_ context.Context, pageURL string) (string, error) {
	return f[pageURL], nil
}

func testConfig(t *testing.T) *types.Config {
	dir := t.TempDir()
	cfg := types.DefaultConfig()
	cfg.URLsFile = filepath.Join(dir, "urls.txt")
	cfg.KeywordsFile = filepath.Join(dir, "keywords.json")
	cfg.OutputDir = filepath.Join(dir, "output_configs")
	cfg.ReadmeFile = filepath.Join(dir, "README.md")
	cfg.BatchDelayMs = 0
	cfg.WebConf.Port = 0
	require.NoError(t, os.WriteFile(cfg.URLsFile, []byte("https://a.example.com/sub\n"), 0644))
	require.NoError(t, os.WriteFile(cfg.KeywordsFile, []byte(`{"Japan": ["JP"]}`), 0644))
	return cfg
}

var fetcher = staticFetcher{"https://a.example.com/sub": "trojan://pw@1.2.3.4:443#JP-1\n"}

func TestRunOnce(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(context.Background(), cfg, fetcher)
	require.NoError(t, err)
	require.NoError(t, a.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "countries", "Japan.txt"))
	require.NoError(t, err)
	assert.Equal(t, "trojan://pw@1.2.3.4:443#JP-1\n", string(data))
}

func TestRunOnceFailsOnBadInputs(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.Remove(cfg.URLsFile))
	a, err := newApp(context.Background(), cfg, fetcher)
	require.NoError(t, err)
	assert.Error(t, a.Run(context.Background()))
}

func TestRunUnknownMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "forever"
	a, err := newApp(context.Background(), cfg, fetcher)
	require.NoError(t, err)
	assert.ErrorIs(t, a.Run(context.Background()), ErrUnknownMode)
}

func TestRunDaemonRerunsOnInputChange(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = ModeDaemon
	cfg.IntervalMinutes = 60
	a, err := newApp(context.Background(), cfg, fetcher)
	require.NoError(t, err)

	var runs atomic.Int32
	a.manager.OnRunFinished(func(*model.RunResult, error) { runs.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 5*time.Second, 20*time.Millisecond)

	// 给 watcher 一点时间完成注册
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(cfg.URLsFile, []byte("https://a.example.com/sub\n# changed\n"), 0644))
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestWatchInputsDebounces(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "keywords.json")
	other := filepath.Join(dir, "unrelated.txt")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0644))

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = watchInputs(ctx, []string{file}, func() { calls.Add(1) }) }()
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(file, []byte(`{"a": []}`), 0644))
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(debounceDuration + 200*time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
}

func TestCommonDir(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, root, commonDir(filepath.Join(root, "README.md"), filepath.Join(root, "output_configs")))
	assert.Equal(t, root, commonDir(filepath.Join(root, "docs", "README.md"), filepath.Join(root, "out")))
}
