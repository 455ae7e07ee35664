package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDuration reads a duration setting such as "storage.op_timeout". Blank
// and "0s" both yield def; negative values are rejected.
func ParseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration (want e.g. \"5s\", \"1m30s\")", field, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: %q is negative", field, raw)
	case d == 0:
		return def, nil
	}
	return d, nil
}
