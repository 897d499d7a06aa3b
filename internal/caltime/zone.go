package caltime

import (
	"strings"
	"time"
	_ "time/tzdata"

	lru "github.com/hashicorp/golang-lru/v2"
)

const zoneCacheSize = 256

type zoneEntry struct {
	loc *time.Location
	err error
}

// zones memoizes lookups, including failures: the same custom TZID tends to
// appear on every line of a document.
var zones = func() *lru.Cache[string, zoneEntry] {
	c, err := lru.New[string, zoneEntry](zoneCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}()

// LoadLocation resolves a TZID through the system time zone database. Vendor
// prefixed identifiers such as "/mozilla.org/20050126_1/Europe/Berlin" are
// retried with their trailing Area/City part. Safe for concurrent use.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.Trim(strings.TrimSpace(name), `"`)
	if e, ok := zones.Get(name); ok {
		return e.loc, e.err
	}
	loc, err := loadLocation(name)
	zones.Add(name, zoneEntry{loc: loc, err: err})
	return loc, err
}

func loadLocation(name string) (*time.Location, error) {
	switch strings.ToUpper(name) {
	case "UTC", "Z", "GMT", "ETC/UTC":
		return time.UTC, nil
	case "":
		return nil, ErrInvalidDateTime
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	parts := strings.Split(strings.Trim(name, "/"), "/")
	if len(parts) > 2 {
		if alt, altErr := time.LoadLocation(strings.Join(parts[len(parts)-2:], "/")); altErr == nil {
			return alt, nil
		}
	}
	return nil, err
}
