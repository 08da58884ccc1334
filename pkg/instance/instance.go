package instance

import "os"

// GetID identifies the running process in logs. HOPL_INSTANCE_ID wins, then the
// Heroku dyno name, then the container hostname.
func GetID() string {
	for _, key := range []string{"HOPL_INSTANCE_ID", "DYNO", "HOSTNAME"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}
