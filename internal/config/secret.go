package config

import (
	"github.com/zalando/go-keyring"
)

const (
	keyringService    = "peterbot"
	dashboardPassUser = "dashboard-password"
)

// loadDashboardPassword resolves DASHBOARD_PASSWORD: the env var wins when
// set (so headless/container deployments with no OS keychain still work),
// otherwise it falls back to whatever `onboard` stored in the OS keychain.
func loadDashboardPassword(envValue string) string {
	if envValue != "" {
		return envValue
	}
	pass, err := keyring.Get(keyringService, dashboardPassUser)
	if err != nil {
		return ""
	}
	return pass
}

// StoreDashboardPassword saves password in the OS keychain, so `onboard`
// doesn't have to write it into a plaintext .env file. Returns an error if
// no keychain backend is available (headless Linux with no secret
// service); callers should fall back to writing DASHBOARD_PASSWORD to .env
// in that case.
func StoreDashboardPassword(password string) error {
	return keyring.Set(keyringService, dashboardPassUser, password)
}
