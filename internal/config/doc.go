// Package config loads service configuration from environment variables.
package config
