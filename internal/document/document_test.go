package document

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/docsink/internal/logging"
)

func TestNew(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	rec := &logging.LogRecord{
		Timestamp:       ts,
		Level:           logging.WarningLevel,
		MessageTemplate: "{Song}++",
		Properties:      map[string]logging.PropertyValue{"Song": logging.Scalar{Value: "New Macabre"}},
		Exception:       logging.ExceptionFromError(errors.New("Mládek")),
	}

	doc := New(rec, nil)

	assert.Equal(t, ts, doc.Timestamp)
	assert.Equal(t, "Warning", doc.Level)
	assert.Equal(t, "{Song}++", doc.MessageTemplate)
	assert.Equal(t, `"New Macabre"++`, doc.RenderedMessage)
	assert.Equal(t, map[string]any{"Song": "New Macabre"}, doc.Properties)
	require.NotNil(t, doc.Exception)
	assert.Equal(t, "Mládek", doc.Exception.Message)
	assert.Equal(t, "*errors.errorString", doc.Exception.Type)
}

func TestLogDocument_JSONShape(t *testing.T) {
	doc := New(&logging.LogRecord{
		Timestamp:       time.Unix(0, 0).UTC(),
		Level:           logging.InformationLevel,
		MessageTemplate: "hello",
	}, nil)

	b, err := json.Marshal(doc)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "1970-01-01T00:00:00Z", m["timestamp"])
	assert.Equal(t, "Information", m["level"])
	assert.Equal(t, "hello", m["renderedMessage"])
	assert.Equal(t, map[string]any{}, m["properties"])
	assert.NotContains(t, m, "exception")
}
