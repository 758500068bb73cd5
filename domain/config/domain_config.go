package config

import "time"

// DomainConfig holds the business rules for posts, threads and caching
type DomainConfig struct {
	// Post constraints
	MaxContentLength  int
	MaxMediaURLLength int

	// Paging
	DefaultPageSize int
	MaxPageSize     int

	// Repost expansion depth. One level by contract.
	RepostExpansionDepth int

	// Cache behaviour
	CacheTTL          time.Duration
	LockLease         time.Duration
	LockRetryAttempts int
	LockRetryBackoff  time.Duration
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MaxContentLength:  280,
		MaxMediaURLLength: 2048,

		DefaultPageSize: 10,
		MaxPageSize:     100,

		RepostExpansionDepth: 1,

		CacheTTL:          time.Hour,
		LockLease:         10 * time.Second,
		LockRetryAttempts: 3,
		LockRetryBackoff:  50 * time.Millisecond,
	}
}

// ClampPageSize bounds a requested page size to the configured range
func (c *DomainConfig) ClampPageSize(size int) int {
	if size <= 0 {
		return c.DefaultPageSize
	}
	if size > c.MaxPageSize {
		return c.MaxPageSize
	}
	return size
}
