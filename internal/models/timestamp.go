package models

import "time"

// Filename timestamp layouts. New files use the compact form; older
// deployments wrote an underscore between date and time, so reads accept
// both.
const (
	stampCompact = "20060102150405"
	stampLegacy  = "20060102_150405"
)

// ParseStamp extracts the segment timestamp embedded in a recording or
// evidence filename. It scans for the first run that parses as either the
// compact or the legacy underscore layout.
func ParseStamp(name string) (time.Time, bool) {
	for i := 0; i+len(stampCompact) <= len(name); i++ {
		if !isDigit(name[i]) {
			continue
		}
		if t, err := time.ParseInLocation(stampCompact, name[i:i+len(stampCompact)], time.Local); err == nil {
			return t, true
		}
		if i+len(stampLegacy) <= len(name) {
			if t, err := time.ParseInLocation(stampLegacy, name[i:i+len(stampLegacy)], time.Local); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
