package app

import (
	"strings"

	"github.com/lombeo/sep490-backend-sub003/internal/cache"
)

// RedisOptions converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisOptions() cache.RedisConfig {
	addrs := make([]string, 0, len(c.Redis.Addresses))
	for _, addr := range c.Redis.Addresses {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}

	return cache.RedisConfig{
		Addresses: addrs,
		Username:  strings.TrimSpace(c.Redis.Username),
		Password:  c.Redis.Password,
		DB:        c.Redis.DB,
		TLS:       c.Redis.TLS,
		Timeout:   c.Redis.Timeout,
		Prefix:    c.Redis.Prefix,
	}
}
