package worker

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// DefaultCacheName is the generation the current release installs.
const DefaultCacheName = "pocketbizz-v1.0.0"

// DefaultAPIPrefix marks requests answered with the offline JSON body.
const DefaultAPIPrefix = "/api/"

// DefaultManifest is the app shell fetched on install.
var DefaultManifest = []string{
	"/",
	"/static/css/style.css",
	"/static/js/app.js",
	"/static/js/pwa.js",
	"/static/js/offline.js",
	"/static/js/voice_input.js",
	"/static/js/whatsapp_integration.js",
	"/static/js/smart_receipt_processor.js",
	"/static/icons/pocketbizz-icon.svg",
	"/static/manifest.json",
	"https://cdn.tailwindcss.com",
	"https://unpkg.com/feather-icons",
	"https://fonts.googleapis.com/css2?family=Inter:wght@300;400;500;600;700&display=swap",
}

// DefaultExclusions are URL substrings that are never cached.
var DefaultExclusions = []string{
	"/api/",
	"/add_transaction",
	"/upload",
	"analytics",
	"admin",
}

// ShouldCache reports whether a response for rawURL may be stored: false when
// the URL contains any exclusion pattern.
func ShouldCache(rawURL string, exclusions []string) bool {
	for _, pattern := range exclusions {
		if pattern != "" && strings.Contains(rawURL, pattern) {
			return false
		}
	}
	return true
}

// CacheKey builds the storage key for a request.
func CacheKey(method string, u *url.URL) string {
	clean := *u
	clean.Fragment = ""
	clean.RawFragment = ""
	return strings.ToUpper(method) + " " + clean.String()
}

// requestClass is the fetch strategy chosen for a request.
type requestClass int

const (
	classDefault requestClass = iota
	classNavigation
	classStatic
	classAPI
)

var staticDestinations = map[string]bool{
	"style":  true,
	"script": true,
	"font":   true,
}

var staticExtensions = map[string]bool{
	".css":   true,
	".js":    true,
	".mjs":   true,
	".woff":  true,
	".woff2": true,
	".ttf":   true,
	".otf":   true,
}

// classify mirrors a browser worker's view of a GET request. Non-browser
// clients do not send Sec-Fetch headers, so the Accept header and the file
// extension stand in for them.
func classify(h http.Header, u *url.URL, apiPrefix string) requestClass {
	dest := strings.ToLower(h.Get("Sec-Fetch-Dest"))
	switch {
	case strings.EqualFold(h.Get("Sec-Fetch-Mode"), "navigate"),
		dest == "document",
		dest == "" && strings.Contains(h.Get("Accept"), "text/html"):
		return classNavigation
	case staticDestinations[dest],
		dest == "" && staticExtensions[strings.ToLower(path.Ext(u.Path))]:
		return classStatic
	case apiPrefix != "" && strings.Contains(u.Path, apiPrefix):
		return classAPI
	default:
		return classDefault
	}
}

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Host":                true,
	"Content-Length":      true,
}
