// Package srvconfig holds the connection-level configuration shared by
// the PostgreSQL and MySQL wire servers: credentials, timeouts, and the
// default database name, all populated from CLI flags in cmd/yamldb and
// optionally overridden by the YAML file's database.auth block (spec.md
// §6).
package srvconfig

import "time"

type Config struct {
	Username       string
	Password       string
	AllowAnonymous bool
	Database       string

	MaxConnections  int
	ConnTimeout     time.Duration
	QueryTimeout    time.Duration
	PermitAcquireTO time.Duration
}

// Default matches spec.md §4.9/§6's defaults.
func Default() Config {
	return Config{
		MaxConnections:  1000,
		ConnTimeout:     300 * time.Second,
		QueryTimeout:    60 * time.Second,
		PermitAcquireTO: 30 * time.Second,
	}
}

// CheckPassword validates a username/password pair against the
// configured credentials, honoring AllowAnonymous.
func (c Config) CheckPassword(user, pass string) bool {
	if c.AllowAnonymous {
		return true
	}
	return user == c.Username && pass == c.Password
}
