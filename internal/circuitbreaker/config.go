package circuitbreaker

import "time"

// Settings is the externally configured shape of a breaker.
type Settings struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	SuccessThreshold uint32        `mapstructure:"success_threshold"`
}

// DatabaseSettings are the defaults for the document store breaker.
func DatabaseSettings() Settings {
	return Settings{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	}
}

// RedisSettings are the defaults for the rate limit and idempotency cache breaker.
func RedisSettings() Settings {
	return Settings{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	}
}

// LLMSettings are the defaults for the generative model breaker. Model calls
// are slow and paid, so the breaker opens quickly and stays open longer.
func LLMSettings() Settings {
	return Settings{
		MaxRequests:      1,
		Interval:         2 * time.Minute,
		Timeout:          60 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 1,
	}
}

// StorageSettings are the defaults for the upload bucket breaker.
func StorageSettings() Settings {
	return Settings{
		MaxRequests:      2,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 1,
	}
}

// ToConfig converts Settings to a breaker Config, filling zero fields from fallback.
func (s Settings) ToConfig(fallback Settings) Config {
	if s.MaxRequests == 0 {
		s.MaxRequests = fallback.MaxRequests
	}
	if s.Interval == 0 {
		s.Interval = fallback.Interval
	}
	if s.Timeout == 0 {
		s.Timeout = fallback.Timeout
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = fallback.FailureThreshold
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = fallback.SuccessThreshold
	}
	return Config{
		MaxRequests:      s.MaxRequests,
		Interval:         s.Interval,
		Timeout:          s.Timeout,
		FailureThreshold: s.FailureThreshold,
		SuccessThreshold: s.SuccessThreshold,
	}
}
