package app

import (
	"strings"

	"github.com/lombeo/sep490-backend-sub003/internal/auth"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         strings.TrimSpace(c.JWT.Secret),
		Issuer:         strings.TrimSpace(c.JWT.Issuer),
		AccessTokenTTL: ttl,
	}
}

// SessionConfig converts AuthConfig into refresh token settings.
func (c AuthConfig) SessionConfig() auth.SessionConfig {
	ttl := c.JWT.RefreshTTL
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}
	return auth.SessionConfig{RefreshTokenTTL: ttl}
}
