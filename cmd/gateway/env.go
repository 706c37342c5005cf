package main

import (
	"os"
	"strings"
)

// getEnvOrDefault returns the value of key, or defaultValue when unset or
// empty.
func getEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool parses key as a boolean flag. Unrecognized values fall back to
// defaultValue.
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}
