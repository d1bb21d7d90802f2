// Package instance names the running process in logs and lock values.
package instance

import (
	"cmp"
	"os"
)

const EnvInstanceID = "PARTSRESERVE_INSTANCE_ID"

// GetID returns the configured instance id, then the platform dyno name,
// then the hostname, then fallback.
func GetID(fallback string) string {
	host, _ := os.Hostname()
	return cmp.Or(os.Getenv(EnvInstanceID), os.Getenv("DYNO"), host, fallback)
}
