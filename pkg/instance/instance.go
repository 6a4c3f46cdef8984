package instance

import "github.com/angelmondragon/bazaar-backend/pkg/env"

// GetID names the running replica for logs: an explicit BAZAAR_INSTANCE_ID,
// then the Cloud Run revision, then the container hostname.
func GetID() string {
	return env.First("local", "BAZAAR_INSTANCE_ID", "K_REVISION", "HOSTNAME")
}
