package config

// Limits the external runner must respect
const (
	MinWorkers        = 1
	MaxWorkers        = 3
	MinTimeoutSeconds = 5
	MaxTimeoutSeconds = 30
)

// DefaultUserAgents provides a list of common user agents
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// MobileUserAgent is used with the mobile viewport
const MobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 14_7_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.2 Mobile/15E148 Safari/604.1"

// Mobile viewport size
const (
	MobileWidth  = 390
	MobileHeight = 844
)

// HardeningFlags are Chrome switches needed to run inside CI containers
var HardeningFlags = []string{
	"disable-dev-shm-usage",
	"disable-accelerated-2d-canvas",
	"no-first-run",
	"disable-gpu",
}
