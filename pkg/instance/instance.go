// Package instance names the running worker process. The name is stored as
// the owner of Redis locks and delivery claims so operators can tell which
// replica holds them.
package instance

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// ID returns configured when it is set. Otherwise it builds
// "<hostname>-<8 hex chars>", unique per process even when replicas share a
// hostname.
func ID(configured string) string {
	if id := strings.TrimSpace(configured); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}
