// Package version holds build stamps set with -ldflags "-X".
package version

import "time"

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// BuiltAt parses BuildTime. The zero time means the stamp was not set.
func BuiltAt() time.Time {
	if BuildTime == "" || BuildTime == "unknown" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, BuildTime)
	if err != nil {
		return time.Time{}
	}
	return t
}
