// Package expiration decides whether a stored log record expires, and when.
//
// A Policy carries two optional durations, one for the error severity class
// (Error, Fatal) and one for everything else, plus an optional callback that
// overrides both. Resolve evaluates the rules in a fixed order:
//
//  1. a configured Callback decides on its own;
//  2. error records use ErrorExpiration, falling back to DefaultExpiration;
//  3. other records use DefaultExpiration, falling back to ErrorExpiration;
//  4. an unset or Never duration means the record does not expire;
//  5. otherwise the record expires at now + duration.
//
// now is supplied by the caller at the moment the record is prepared for
// persistence, so time spent queued does not shorten the expiration window.
package expiration

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Chichichkin/docsink/internal/logging"
)

// Never is the sentinel duration meaning "does not expire". A zero duration
// means "not configured".
const Never time.Duration = -1

// ErrInvalidDuration is returned for negative durations other than Never.
var ErrInvalidDuration = errors.New("expiration must be positive or Never")

// Policy is the expiration configuration of a sink.
type Policy struct {
	DefaultExpiration time.Duration
	ErrorExpiration   time.Duration
	Callback          func(*logging.LogRecord) time.Duration
}

// Decision is the outcome of Resolve.
type Decision struct {
	Expires bool
	At      time.Time
}

// NoExpiration is the Decision for records that are kept forever.
var NoExpiration = Decision{}

// ExpireAt returns a Decision expiring at t.
func ExpireAt(t time.Time) Decision {
	return Decision{Expires: true, At: t}
}

// Validate rejects negative durations other than Never.
func (p Policy) Validate() error {
	if !valid(p.DefaultExpiration) {
		return fmt.Errorf("default expiration %v: %w", p.DefaultExpiration, ErrInvalidDuration)
	}
	if !valid(p.ErrorExpiration) {
		return fmt.Errorf("error expiration %v: %w", p.ErrorExpiration, ErrInvalidDuration)
	}
	return nil
}

// Enabled reports whether any record could receive an expiration.
func (p Policy) Enabled() bool {
	return p.Callback != nil || p.DefaultExpiration > 0 || p.ErrorExpiration > 0
}

func valid(d time.Duration) bool {
	return d >= 0 || d == Never
}

// rule inspects the policy and record; ok=false passes to the next rule.
type rule func(p Policy, rec *logging.LogRecord) (d time.Duration, ok bool)

var rules = []rule{
	callbackRule,
	errorClassRule,
	defaultClassRule,
}

func callbackRule(p Policy, rec *logging.LogRecord) (time.Duration, bool) {
	if p.Callback == nil {
		return 0, false
	}
	return p.Callback(rec), true
}

func errorClassRule(p Policy, rec *logging.LogRecord) (time.Duration, bool) {
	if !rec.Level.IsError() {
		return 0, false
	}
	return firstSet(p.ErrorExpiration, p.DefaultExpiration), true
}

func defaultClassRule(p Policy, _ *logging.LogRecord) (time.Duration, bool) {
	return firstSet(p.DefaultExpiration, p.ErrorExpiration), true
}

func firstSet(primary, fallback time.Duration) time.Duration {
	if primary != 0 {
		return primary
	}
	return fallback
}

// Resolve computes the expiration decision for rec at time now.
func Resolve(p Policy, rec *logging.LogRecord, now time.Time) Decision {
	for _, r := range rules {
		d, ok := r(p, rec)
		if !ok {
			continue
		}
		return decide(d, now)
	}
	return NoExpiration
}

func decide(d time.Duration, now time.Time) Decision {
	if d == 0 || d == Never {
		return NoExpiration
	}
	return ExpireAt(now.Add(d))
}

// ParseExpiration parses a configured expiration. The empty string is unset,
// "never"/"infinite" is Never, anything else must be a positive Go duration.
func ParseExpiration(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, nil
	case "never", "infinite":
		return Never, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse expiration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("parse expiration %q: %w", s, ErrInvalidDuration)
	}
	return d, nil
}

// FormatExpiration is the inverse of ParseExpiration.
func FormatExpiration(d time.Duration) string {
	switch d {
	case 0:
		return ""
	case Never:
		return "never"
	}
	return d.String()
}
