package envutil

import (
	"os"
	"strings"
)

// IsDev checks if we're running in development mode,
// where cookies may be sent over plain http
func IsDev() bool {
	env := strings.ToLower(os.Getenv("AUTH_RELAY_ENV"))
	return env == "development" || env == "dev"
}
