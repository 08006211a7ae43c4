/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-callkit/log"
)

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	logger := rec.With(log.String("component", "worker"))
	logger.Info("task done", log.String("task_type", "sha256"))
	logger.Debugf("queued %d calls", 3)

	entry, found := rec.FindEntry("task done")
	require.True(t, found)
	require.Equal(t, log.LevelInfo, entry.Level)
	field, found := entry.FindField("task_type")
	require.True(t, found)
	require.Equal(t, "sha256", string(field.Bytes))
	_, found = entry.FindField("component")
	require.True(t, found)

	entry, found = rec.FindEntry("queued 3 calls")
	require.True(t, found)
	require.Equal(t, log.LevelDebug, entry.Level)

	require.Len(t, rec.Entries(), 2)
	rec.Reset()
	require.Empty(t, rec.Entries())
}
