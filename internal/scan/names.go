package scan

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// friendlyNameKeys are TXT attribute keys tried in order for a display name.
var friendlyNameKeys = []string{"n", "fn", "name", "model", "md", "deviceName", "am", "dn"}

var castHashSuffix = regexp.MustCompile(`-[0-9a-f]{8}$`)

// friendlyName returns the first non-blank TXT value that is not the host
// address itself.
func friendlyName(attrs map[string][]byte, host string) (string, bool) {
	for _, key := range friendlyNameKeys {
		raw, ok := attrs[key]
		if !ok || len(raw) == 0 || !utf8.Valid(raw) {
			continue
		}
		value := strings.TrimSpace(string(raw))
		if value == "" || value == host {
			continue
		}
		return value, true
	}
	return "", false
}

// cleanServiceName strips mDNS artefacts from an advertised instance name.
func cleanServiceName(name, serviceType string) string {
	name = strings.TrimSuffix(name, ".")
	name = strings.TrimSuffix(name, ".local")

	switch {
	case strings.Contains(serviceType, "_googlecast"):
		name = castHashSuffix.ReplaceAllString(name, "")
	case strings.Contains(serviceType, "_airplay"), strings.Contains(serviceType, "_raop"):
		if strings.Contains(name, "%") {
			if decoded, err := url.QueryUnescape(name); err == nil {
				name = decoded
			}
		}
	}
	return strings.TrimSpace(name)
}

func isAirPlayFamily(serviceType string) bool {
	return strings.Contains(serviceType, "_airplay") || strings.Contains(serviceType, "_raop")
}

// parseTXT splits "key=value" TXT strings. Keys without a value map to an
// empty slice.
func parseTXT(records []string) map[string][]byte {
	if len(records) == 0 {
		return nil
	}
	attrs := make(map[string][]byte, len(records))
	for _, rec := range records {
		key, value, _ := strings.Cut(rec, "=")
		if key == "" {
			continue
		}
		if _, exists := attrs[key]; exists {
			continue
		}
		attrs[key] = []byte(value)
	}
	return attrs
}
