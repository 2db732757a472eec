package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"

	"github.com/Chichichkin/docsink/internal/logging"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestParseLine_PlainText(t *testing.T) {
	var p fastjson.Parser
	rec, structured := ParseLine(&p, "GET /users/{id} 200\r", fixedNow)

	assert.False(t, structured)
	assert.Equal(t, logging.InformationLevel, rec.Level)
	assert.Equal(t, fixedNow, rec.Timestamp)
	assert.Equal(t, "GET /users/{{id}} 200", rec.MessageTemplate)
	assert.Equal(t, "GET /users/{id} 200", rec.RenderMessage(nil))
}

func TestParseLine_CompactJSON(t *testing.T) {
	var p fastjson.Parser
	line := `{"@t":"2024-05-01T09:30:00.5Z","@l":"Warning","@mt":"Disk {Mount} at {Pct}%","Mount":"/data","Pct":91.5,"Tags":["a","b"],"Host":{"Name":"n1"}}`
	rec, structured := ParseLine(&p, line, fixedNow)

	require.True(t, structured)
	assert.Equal(t, logging.WarningLevel, rec.Level)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 30, 0, 500_000_000, time.UTC), rec.Timestamp)
	assert.Equal(t, "Disk {Mount} at {Pct}%", rec.MessageTemplate)
	assert.Equal(t, `Disk "/data" at 91.5%`, rec.RenderMessage(nil))
	assert.Equal(t, logging.Sequence{Elements: []logging.PropertyValue{
		logging.Scalar{Value: "a"}, logging.Scalar{Value: "b"},
	}}, rec.Properties["Tags"])
	assert.Equal(t, logging.Structure{Properties: []logging.Property{
		{Name: "Name", Value: logging.Scalar{Value: "n1"}},
	}}, rec.Properties["Host"])
	assert.NotContains(t, rec.Properties, "@t")
	assert.NotContains(t, rec.Properties, "@l")
}

func TestParseLine_CommonFieldNames(t *testing.T) {
	var p fastjson.Parser
	line := `{"time":"2024-05-01T08:00:00Z","level":"error","msg":"failed {x}","error":"boom\n  at main.go:10","attempt":3}`
	rec, structured := ParseLine(&p, line, fixedNow)

	require.True(t, structured)
	assert.Equal(t, logging.ErrorLevel, rec.Level)
	assert.Equal(t, "failed {{x}}", rec.MessageTemplate)
	require.NotNil(t, rec.Exception)
	assert.Equal(t, "boom", rec.Exception.Message)
	assert.Equal(t, "  at main.go:10", rec.Exception.StackTrace)
	assert.Equal(t, logging.Scalar{Value: int64(3)}, rec.Properties["attempt"])
}

func TestParseLine_UnknownLevelKeptAsProperty(t *testing.T) {
	var p fastjson.Parser
	rec, _ := ParseLine(&p, `{"level":"chatty","msg":"hi"}`, fixedNow)

	assert.Equal(t, logging.InformationLevel, rec.Level)
	assert.Equal(t, logging.Scalar{Value: "chatty"}, rec.Properties["level"])
}

func TestParseLine_BrokenJSONIsPlainText(t *testing.T) {
	var p fastjson.Parser
	rec, structured := ParseLine(&p, `{"msg": "unterminated`, fixedNow)

	assert.False(t, structured)
	assert.Equal(t, `{{"msg": "unterminated`, rec.MessageTemplate)
}

func TestPathProperties(t *testing.T) {
	props := pathProperties("/var/log/pods", "/var/log/pods/default_pod-1_uid123/container-1/0.log", "node-1")
	assert.Equal(t, logging.Scalar{Value: "/var/log/pods/default_pod-1_uid123/container-1/0.log"}, props["File"])
	assert.Equal(t, logging.Scalar{Value: "node-1"}, props["Node"])
	assert.Equal(t, logging.Scalar{Value: "default"}, props["Namespace"])
	assert.Equal(t, logging.Scalar{Value: "pod-1"}, props["Pod"])
	assert.Equal(t, logging.Scalar{Value: "uid123"}, props["PodUID"])
	assert.Equal(t, logging.Scalar{Value: "container-1"}, props["Container"])

	props = pathProperties("/tmp", "/tmp/a.log", "")
	assert.Len(t, props, 1)
	assert.Contains(t, props, "File")
}

func TestLooksStructured(t *testing.T) {
	assert.True(t, looksStructured(`  {"@mt":"x"}`))
	assert.True(t, looksStructured("{broken"))
	assert.False(t, looksStructured("plain {braces}"))
	assert.False(t, looksStructured(""))
}
