package openai

import (
	"net/url"
	"strings"

	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/pkg/models"
)

const (
	envAPIKey = "OPENAI_API_KEY"
	// keyNotNeeded is sent to local servers that ignore authentication.
	keyNotNeeded = "not-needed"
)

// ResolveAPIKey picks the API key for cfg: the explicit key, then the
// variable named by the "api_key_env" credential, then OPENAI_API_KEY.
// Local endpoints get a placeholder key when none is configured.
func ResolveAPIKey(cfg models.AgentConfig, getenv func(string) string) (string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}
	if name := cfg.Credential("api_key_env"); name != "" {
		if v := getenv(name); v != "" {
			return v, nil
		}
	}
	if v := getenv(envAPIKey); v != "" {
		return v, nil
	}
	if isLocal(cfg.BaseURL) {
		return keyNotNeeded, nil
	}
	return "", provider.AuthError("openai.resolve_api_key", "no API key configured; set "+envAPIKey+" or api_key", nil)
}

func isLocal(baseURL string) bool {
	if baseURL == "" {
		return false
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
