package feedregistry

import (
	"regexp"
	"strings"
)

var (
	fundamentalPair = regexp.MustCompile(`(?i)^(.+?)_FUNDAMENTAL$`)
	underscorePair  = regexp.MustCompile(`^([A-Za-z0-9]+)_([A-Za-z0-9]+)$`)
)

// parseSlashPair splits "BASE / QUOTE" at the last slash. It returns nil when
// either side is empty or there is no slash.
func parseSlashPair(s string) []string {
	i := strings.LastIndex(s, "/")
	if i < 0 {
		return nil
	}
	base := strings.TrimSpace(s[:i])
	quote := strings.TrimSpace(s[i+1:])
	if base == "" || quote == "" {
		return nil
	}
	return []string{base, quote}
}

// parseRedstonePair understands the three key styles of Redstone manifests:
// "ETH / USD", "sYUSD_FUNDAMENTAL" (priced in USD) and "WETH_ETH".
func parseRedstonePair(key string) []string {
	if pair := parseSlashPair(key); pair != nil {
		return pair
	}
	if m := fundamentalPair.FindStringSubmatch(key); m != nil {
		return []string{m[1], "USD"}
	}
	if m := underscorePair.FindStringSubmatch(key); m != nil {
		return []string{m[1], m[2]}
	}
	return nil
}
