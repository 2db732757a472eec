package pebblestore

import (
	"fmt"
	"time"
)

const (
	dbPrefix       = "db/"
	registryPrefix = "meta/db/"
	expDigits      = 20
)

func docPrefix(database string) []byte {
	return []byte(dbPrefix + database + "/doc/")
}

func docKey(database, id string) []byte {
	return append(docPrefix(database), id...)
}

func expPrefix(database string) []byte {
	return []byte(dbPrefix + database + "/exp/")
}

// expKey sorts by expiry time: unix nanos are zero-padded to a fixed width.
func expKey(database string, at time.Time, id string) []byte {
	return fmt.Appendf(expPrefix(database), "%0*d/%s", expDigits, at.UnixNano(), id)
}

// expUpperBound is the exclusive bound covering every entry expiring at or
// before at.
func expUpperBound(database string, at time.Time) []byte {
	return fmt.Appendf(expPrefix(database), "%0*d0", expDigits, at.UnixNano())
}

// idFromExpKey strips the prefix and timestamp from an expiry index key.
func idFromExpKey(database string, key []byte) (string, bool) {
	n := len(expPrefix(database)) + expDigits + 1
	if len(key) <= n {
		return "", false
	}
	return string(key[n:]), true
}

func registryKey(database string) []byte {
	return []byte(registryPrefix + database)
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
