package config

import "time"

// RateLimitConfig tunes the Redis token bucket guarding the credential
// endpoints (register, login, refresh).
type RateLimitConfig struct {
	Enabled        bool          `env:"RATE_LIMIT_ENABLED"         envDefault:"true"`
	Capacity       int           `env:"RATE_LIMIT_CAPACITY"        envDefault:"10"`
	RefillTokens   int           `env:"RATE_LIMIT_REFILL_TOKENS"   envDefault:"1"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"6s"`
	TTL            time.Duration `env:"RATE_LIMIT_TTL"             envDefault:"10m"`
	KeyStrategy    string        `env:"RATE_LIMIT_KEY_STRATEGY"    envDefault:"ip_route"`
	Prefix         string        `env:"RATE_LIMIT_PREFIX"          envDefault:"rl"`
	Debug          bool          `env:"RATE_LIMIT_DEBUG"           envDefault:"false"`
}

func (r *RateLimitConfig) normalize() {
	if r.Capacity < 1 {
		r.Capacity = 1
	}
	if r.RefillTokens < 1 {
		r.RefillTokens = 1
	}
	if r.RefillInterval <= 0 {
		r.RefillInterval = time.Second
	}
	// A bucket must outlive several refill intervals or it resets early.
	if minTTL := 5 * r.RefillInterval; r.TTL < minTTL {
		r.TTL = minTTL
	}
}
