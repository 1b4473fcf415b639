package common

import (
	"strconv"
	"strings"
)

// Validate endpoint (IP:port or DomainName:port)
func IsValidEndpoint(endpoint string) bool {
	parts := strings.Split(endpoint, ":")
	if len(parts) != 2 {
		return false
	}
	port := parts[1]
	if _, err := strconv.Atoi(port); err != nil {
		return false
	}
	return true
}

// HostOfEndpoint returns the host part of host:port, used when building the
// Kerberos service principal for a namenode address.
func HostOfEndpoint(endpoint string) string {
	if i := strings.LastIndex(endpoint, ":"); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
