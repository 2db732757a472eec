// Package document defines the persisted shape of a log record.
package document

import (
	"time"

	"github.com/Chichichkin/docsink/internal/logging"
	"github.com/Chichichkin/docsink/internal/logging/simplify"
)

const (
	// Collection groups log documents inside a database.
	Collection = "LogEvents"
	// MetadataExpires is the metadata key holding the absolute UTC expiry time.
	MetadataExpires = "@expires"
)

// LogDocument is the document stored for one LogRecord.
type LogDocument struct {
	Timestamp       time.Time      `json:"timestamp"`
	Level           string         `json:"level"`
	MessageTemplate string         `json:"messageTemplate"`
	RenderedMessage string         `json:"renderedMessage"`
	Properties      map[string]any `json:"properties"`
	Exception       *Exception     `json:"exception,omitempty"`
}

// Exception is the persisted form of logging.ExceptionInfo.
type Exception struct {
	Message    string     `json:"message"`
	Type       string     `json:"type"`
	StackTrace string     `json:"stackTrace,omitempty"`
	Inner      *Exception `json:"inner,omitempty"`
}

// New builds the document for rec, rendering its message with fp.
func New(rec *logging.LogRecord, fp logging.FormatProvider) *LogDocument {
	return &LogDocument{
		Timestamp:       rec.Timestamp,
		Level:           rec.Level.String(),
		MessageTemplate: rec.MessageTemplate,
		RenderedMessage: rec.RenderMessage(fp),
		Properties:      simplify.Properties(rec.Properties),
		Exception:       newException(rec.Exception),
	}
}

func newException(info *logging.ExceptionInfo) *Exception {
	if info == nil {
		return nil
	}
	return &Exception{
		Message:    info.Message,
		Type:       info.Type,
		StackTrace: info.StackTrace,
		Inner:      newException(info.Inner),
	}
}
