package httputil

import (
	"net/http"
	"strings"
)

// IsMobileClient reports whether the request comes from a mobile client
// that expects tokens in the response body instead of cookies.
func IsMobileClient(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("X-Client-Type"), "mobile")
}
