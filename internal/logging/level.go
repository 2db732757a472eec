package logging

import (
	"fmt"
	"strings"
)

// Level is the ordered severity of a record.
type Level int

const (
	VerboseLevel Level = iota
	DebugLevel
	InformationLevel
	WarningLevel
	ErrorLevel
	FatalLevel
)

var levelNames = [...]string{"Verbose", "Debug", "Information", "Warning", "Error", "Fatal"}

func (l Level) String() string {
	if l < VerboseLevel || l > FatalLevel {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// IsError reports whether the level belongs to the error severity class.
func (l Level) IsError() bool {
	return l >= ErrorLevel
}

// ParseLevel accepts full names and the common short aliases, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verbose", "trace", "vrb":
		return VerboseLevel, nil
	case "debug", "dbg":
		return DebugLevel, nil
	case "information", "info", "inf":
		return InformationLevel, nil
	case "warning", "warn", "wrn":
		return WarningLevel, nil
	case "error", "err", "eror":
		return ErrorLevel, nil
	case "fatal", "ftl", "critical":
		return FatalLevel, nil
	}
	return InformationLevel, fmt.Errorf("unknown level %q", s)
}
