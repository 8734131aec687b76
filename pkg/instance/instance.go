package instance

import (
	"fmt"
	"os"
	"strings"
)

// EnvInstanceID overrides the identifier a worker uses as its lock owner.
const EnvInstanceID = "RELIVV_INSTANCE_ID"

// GetID returns a stable identifier for this process. Locks taken by the
// cron worker and the reconciler are tagged with it so only the holder can
// release them.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv(EnvInstanceID)); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
