package circularlog_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graydnsapconet/tgbot/internal/circularlog"
)

func TestInitRejectsCapBelowMinimum(t *testing.T) {
	dir := t.TempDir()
	_, err := circularlog.Init(filepath.Join(dir, "x.log"), 100, circularlog.Debug)
	assert.Error(t, err)
}

func TestWriteStaysWithinCapAndWrapsWithSingleMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.log")

	l, err := circularlog.Init(path, 2048, circularlog.Debug)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		require.NoError(t, l.Infof("line number %d with some padding text", i))
	}
	require.NoError(t, l.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(2048))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	count := 0
	for i := 0; i+len(circularlog.Marker) <= len(data); i++ {
		if string(data[i:i+len(circularlog.Marker)]) == circularlog.Marker {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRecoveryContinuesAtMarkerOffsetAndStaysBounded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.log")

	l, err := circularlog.Init(path, 2048, circularlog.Debug)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		require.NoError(t, l.Infof("first run line %d", i))
	}
	require.NoError(t, l.Close())

	l2, err := circularlog.Init(path, 2048, circularlog.Debug)
	require.NoError(t, err)
	assert.True(t, l2.Overwriting())

	for i := 0; i < 50; i++ {
		require.NoError(t, l2.Infof("second run line %d", i))
	}
	require.NoError(t, l2.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(2048))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	count := 0
	for i := 0; i+len(circularlog.Marker) <= len(data); i++ {
		if string(data[i:i+len(circularlog.Marker)]) == circularlog.Marker {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one marker after a second run")
}

func TestLevelFilterDropsBelowMinimum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.log")
	l, err := circularlog.Init(path, 1024, circularlog.Warn)
	require.NoError(t, err)
	require.NoError(t, l.Debugf("should be dropped"))
	require.NoError(t, l.Errorf("should be kept"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should be dropped")
	assert.Contains(t, string(data), "should be kept")
}

func TestTailReturnsLastNLinesInLogicalOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.log")
	l, err := circularlog.Init(path, 4096, circularlog.Debug)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Infof("entry-%02d", i))
	}
	require.NoError(t, l.Close())

	lines, err := circularlog.Tail(path, 3)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "entry-07")
	assert.Contains(t, lines[1], "entry-08")
	assert.Contains(t, lines[2], "entry-09")
}

func TestTailAfterWrapIsInLogicalOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.log")
	l, err := circularlog.Init(path, 2048, circularlog.Debug)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		require.NoError(t, l.Infof("wrap-entry-%03d", i))
	}
	require.NoError(t, l.Close())

	lines, err := circularlog.Tail(path, 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "wrap-entry-199")
}

func TestLongLineIsTruncated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.log")
	l, err := circularlog.Init(path, 256, circularlog.Debug)
	require.NoError(t, err)

	long := ""
	for i := 0; i < 200; i++ {
		long += fmt.Sprintf("%02d", i%100)
	}
	require.NoError(t, l.Infof("%s", long))
	require.NoError(t, l.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(256))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1], "truncation preserves the trailing newline")
}
