package proxy

import (
	"fmt"
	"math/rand"
	"net/url"

	"github.com/chromedp/chromedp"
	"github.com/williampepple1/website-auditor/internal/config"
)

// Manager handles proxy configuration and rotation
type Manager struct {
	Config *config.ProxyConfig
}

// NewManager creates a new proxy manager
func NewManager(config *config.ProxyConfig) *Manager {
	return &Manager{
		Config: config,
	}
}

// GetProxyURL returns a proxy URL from the configuration, or nil when
// proxying is disabled
func (m *Manager) GetProxyURL() (*url.URL, error) {
	if m.Config == nil || !m.Config.Enabled || len(m.Config.List) == 0 {
		return nil, nil
	}

	// Select a proxy
	proxyStr := m.Config.List[0]
	if m.Config.Rotate && len(m.Config.List) > 1 {
		proxyStr = m.Config.List[rand.Intn(len(m.Config.List))]
	}

	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", proxyStr, err)
	}
	if proxyURL.Host == "" {
		return nil, fmt.Errorf("invalid proxy %q: missing host", proxyStr)
	}

	return proxyURL, nil
}

// Credentials returns the proxy login, if one is configured
func (m *Manager) Credentials() (username, password string, ok bool) {
	if m.Config == nil || !m.Config.Enabled {
		return "", "", false
	}
	if m.Config.Auth.Username == "" || m.Config.Auth.Password == "" {
		return "", "", false
	}
	return m.Config.Auth.Username, m.Config.Auth.Password, true
}

// ApplyToAllocator appends the proxy switch to the Chrome launch options.
// Chrome ignores credentials in --proxy-server; they are answered per tab
// from Credentials. It returns the proxy used, or "" when none.
func (m *Manager) ApplyToAllocator(opts []chromedp.ExecAllocatorOption) ([]chromedp.ExecAllocatorOption, string, error) {
	proxyURL, err := m.GetProxyURL()
	if err != nil {
		return opts, "", err
	}
	if proxyURL == nil {
		return opts, "", nil
	}

	server := proxyURL.Scheme + "://" + proxyURL.Host
	if proxyURL.Scheme == "" {
		server = proxyURL.Host
	}
	return append(opts, chromedp.ProxyServer(server)), server, nil
}
