// utils/http.go
package utils

import (
	"net/http"
	"time"
)

var HTTPClient = &http.Client{
	Timeout: 15 * time.Second, // notification service calls are fire-and-forget
}
