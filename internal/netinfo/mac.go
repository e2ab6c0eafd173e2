package netinfo

import (
	"regexp"
	"strings"
)

var (
	macLinePattern    = regexp.MustCompile(`(?i)\b([0-9a-f]{1,2}[:-]){5}[0-9a-f]{1,2}\b`)
	bareMACPattern    = regexp.MustCompile(`(?i)^[0-9a-f]{12}$`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// NormaliseMAC converts the common MAC spellings (dashes, dots, bare hex,
// lower case, single-digit octets) into upper case colon form. Unparseable
// input yields "".
func NormaliseMAC(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if compact := strings.ReplaceAll(raw, ".", ""); bareMACPattern.MatchString(compact) && (compact == raw || strings.Count(raw, ".") == 2) {
		raw = compact[0:2] + ":" + compact[2:4] + ":" + compact[4:6] + ":" + compact[6:8] + ":" + compact[8:10] + ":" + compact[10:12]
	}
	raw = strings.ToUpper(strings.ReplaceAll(raw, "-", ":"))
	match := macLinePattern.FindString(raw)
	if match == "" {
		return ""
	}
	parts := strings.Split(match, ":")
	if len(parts) != 6 {
		return ""
	}
	for i := range parts {
		if len(parts[i]) == 1 {
			parts[i] = "0" + parts[i]
		}
	}
	return strings.Join(parts, ":")
}

// UsableMAC rejects the all-zero and broadcast addresses neighbour tables
// report for incomplete entries.
func UsableMAC(mac string) bool {
	return mac != "" && mac != "00:00:00:00:00:00" && mac != "FF:FF:FF:FF:FF:FF"
}
