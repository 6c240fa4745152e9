package deviceauth

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	clientIDPrefix  = "nannyagent-"
	defaultHostname = "nannyagent"
	maxHostnameLen  = 50
)

var invalidHostnameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// diacriticStripper decomposes characters and drops combining marks, so
// "The-Bürö" sanitizes to "The-Buro" instead of "The-B-r-".
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// DeriveHostname extracts the machine hostname from a pairing client id of
// the form "nannyagent-<hostname>". Anything unrecognized falls back to the
// default.
func DeriveHostname(clientID string) string {
	if clientID == "" {
		return defaultHostname
	}
	if strings.HasPrefix(clientID, clientIDPrefix) {
		hostname := strings.TrimSpace(strings.TrimPrefix(clientID, clientIDPrefix))
		if hostname == "" {
			return defaultHostname
		}
		return hostname
	}
	return clientID
}

// SanitizeHostname makes a hostname safe for use as an agent name: strip
// diacritics, replace anything outside [a-zA-Z0-9-_] with a dash, cap the
// length.
func SanitizeHostname(hostname string) string {
	if stripped, _, err := transform.String(diacriticStripper, hostname); err == nil {
		hostname = stripped
	}
	hostname = invalidHostnameChars.ReplaceAllString(hostname, "-")
	if len(hostname) > maxHostnameLen {
		hostname = hostname[:maxHostnameLen]
	}
	if hostname == "" {
		return defaultHostname
	}
	return hostname
}

// uniqueName picks the collision-free agent name: the base itself when
// free, otherwise the lowest unused "-N" suffix starting at 1.
func uniqueName(base string, taken []string) string {
	used := make(map[string]struct{}, len(taken))
	for _, name := range taken {
		used[name] = struct{}{}
	}
	if _, ok := used[base]; !ok {
		return base
	}
	for n := 1; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if _, ok := used[candidate]; !ok {
			return candidate
		}
	}
}
