package sink

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/docsink/internal/document"
	"github.com/Chichichkin/docsink/internal/logging"
	"github.com/Chichichkin/docsink/internal/testutils"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestLevelFromSlog(t *testing.T) {
	assert.Equal(t, logging.VerboseLevel, LevelFromSlog(slog.LevelDebug-1))
	assert.Equal(t, logging.DebugLevel, LevelFromSlog(slog.LevelDebug))
	assert.Equal(t, logging.InformationLevel, LevelFromSlog(slog.LevelInfo))
	assert.Equal(t, logging.WarningLevel, LevelFromSlog(slog.LevelWarn))
	assert.Equal(t, logging.ErrorLevel, LevelFromSlog(slog.LevelError))
	assert.Equal(t, logging.FatalLevel, LevelFromSlog(slog.LevelError+4))
}

func TestHandler_AttributesBecomeProperties(t *testing.T) {
	store := &testutils.MockDocumentStore{}
	s, err := New(store, Config{})
	require.NoError(t, err)

	logger := slog.New(s.Handler()).With("app", "api")
	logger.Error("request {method} failed", "method", "GET", "error", errors.New("boom"))
	logger.WithGroup("req").Info("served", "path", "/", slog.Group("user", "id", 7))
	require.NoError(t, s.Close())

	docs := store.GetDocuments()
	require.Len(t, docs, 2)

	failed := docs[0].Entity.(*document.LogDocument)
	assert.Equal(t, "Error", failed.Level)
	assert.Equal(t, `request "GET" failed`, failed.RenderedMessage)
	assert.Equal(t, "api", failed.Properties["app"])
	assert.Equal(t, "boom", failed.Properties["error"])
	require.NotNil(t, failed.Exception)
	assert.Equal(t, "boom", failed.Exception.Message)

	served := docs[1].Entity.(*document.LogDocument)
	assert.Equal(t, "api", served.Properties["app"])
	req, ok := served.Properties["req"].(map[string]any)
	require.True(t, ok, "req is %T", served.Properties["req"])
	assert.Equal(t, "/", req["path"])
	assert.Equal(t, map[string]any{"id": int64(7)}, req["user"])
}

func TestHandler_Enabled(t *testing.T) {
	s, err := New(&testutils.MockDocumentStore{}, Config{MinimumLevel: logging.WarningLevel})
	require.NoError(t, err)
	defer s.Close()

	h := s.Handler()
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
}
