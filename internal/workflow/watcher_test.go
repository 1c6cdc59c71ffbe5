package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "wf.yaml", validDoc)

	reg := NewRegistry()
	w := NewWatcher(dir, reg, nil)
	w.SetDebounce(20 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Close()

	assert.Equal(t, []string{"watch-and-alert"}, reg.IDs(), "Start loads the directory once")

	writeDefinition(t, dir, "extra.yaml", `
schema_version: 1
workflows:
  - id: report-only
    steps:
      - capability: observe
        action: poll
`)

	assert.Eventually(t, func() bool {
		return len(reg.IDs()) == 2
	}, 2*time.Second, 10*time.Millisecond, "new file should be picked up")
}

func TestWatcherKeepsPreviousDefinitionsOnBadReload(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "wf.yaml", validDoc)

	reg := NewRegistry()
	w := NewWatcher(dir, reg, nil)
	w.SetDebounce(20 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Close()

	writeDefinition(t, dir, "broken.yaml", "schema_version: 99\n")

	// the broken file must never displace the valid set
	time.Sleep(200 * time.Millisecond)
	_, err := reg.Get("watch-and-alert")
	assert.NoError(t, err)
}

func TestWatcherStartFailsOnInvalidDirectory(t *testing.T) {
	reg := NewRegistry()
	w := NewWatcher("/nonexistent/workflows", reg, nil)
	assert.Error(t, w.Start())
}
