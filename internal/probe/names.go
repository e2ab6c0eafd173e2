package probe

import (
	"html"
	"net"
	"regexp"
	"strings"
)

// NameRule extracts a device name from a response body.
type NameRule func(body string) (string, bool)

// FirstMatch evaluates rules in order and returns the first name found.
func FirstMatch(body string, rules ...NameRule) (string, bool) {
	if body == "" {
		return "", false
	}
	for _, rule := range rules {
		if name, ok := rule(body); ok {
			return name, true
		}
	}
	return "", false
}

// RegexRule builds a rule from a pattern whose first group holds the name.
func RegexRule(pattern string) NameRule {
	re := regexp.MustCompile(pattern)
	return func(body string) (string, bool) {
		match := re.FindStringSubmatch(body)
		if len(match) < 2 {
			return "", false
		}
		name := CleanDeviceName(match[1])
		if !plausibleName(name) {
			return "", false
		}
		return name, true
	}
}

func jsonKeyRule(key string) NameRule {
	return RegexRule(`"` + regexp.QuoteMeta(key) + `"\s*:\s*"([^"]+)"`)
}

func xmlTagRule(tag string) NameRule {
	return RegexRule(`(?is)<` + tag + `>\s*([^<]+?)\s*</` + tag + `>`)
}

var (
	nameNoise = regexp.MustCompile(`(?i)\b(configuration|config page|administration|admin|setup|login|settings|web interface|home page|status page)\b`)
	nameStrip = strings.NewReplacer(`\"`, "", `"`, "", "'", "", `\`, "", "[", "", "]", "", "{", "", "}", "", "\x00", "")
)

// CleanDeviceName strips markup debris, quoting and admin-page words from a
// raw extracted name.
func CleanDeviceName(raw string) string {
	name := html.UnescapeString(raw)
	name = nameStrip.Replace(name)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "null", "undefined", "none", "nil":
		return ""
	}
	name = nameNoise.ReplaceAllString(name, "")
	name = strings.Join(strings.Fields(name), " ")
	return strings.Trim(name, " -:|/")
}

func plausibleName(name string) bool {
	if len(name) <= 2 {
		return false
	}
	lower := strings.ToLower(name)
	switch lower {
	case "device", "smart", "bulb", "light", "plug":
		return false
	}
	for _, placeholder := range []string{"unknown", "default", "cloud-connected", "iot device"} {
		if strings.Contains(lower, placeholder) {
			return false
		}
	}
	return true
}

var serverHeaderNames = []struct {
	tokens []string
	name   string
}{
	{[]string{"homemate"}, "HomeMATE Smart Device"},
	{[]string{"philips", "hue"}, "Philips Hue Device"},
	{[]string{"kasa", "tp-link"}, "Kasa Smart Device"},
	{[]string{"wyze"}, "Wyze Device"},
	{[]string{"sonos"}, "Sonos Speaker"},
	{[]string{"shelly"}, "Shelly Device"},
	{[]string{"tasmota"}, "Tasmota Device"},
	{[]string{"esp8266", "esp32", "espressif"}, "ESP Device"},
	{[]string{"roku"}, "Roku Player"},
	{[]string{"synology"}, "Synology NAS"},
}

// ServerHeaderName maps a recognisable Server header to a device label.
// Generic web servers yield nothing.
func ServerHeaderName(server string) (string, bool) {
	lower := strings.ToLower(server)
	if lower == "" {
		return "", false
	}
	for _, entry := range serverHeaderNames {
		for _, token := range entry.tokens {
			if strings.Contains(lower, token) {
				return entry.name, true
			}
		}
	}
	return "", false
}

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>\s*([^<]+?)\s*</title>`)

func titleRule(body string) (string, bool) {
	match := titlePattern.FindStringSubmatch(body)
	if len(match) < 2 {
		return "", false
	}
	lower := strings.ToLower(match[1])
	if strings.Contains(lower, "index") || strings.Contains(lower, "login") {
		return "", false
	}
	name := CleanDeviceName(match[1])
	return name, plausibleName(name)
}

var htmlNameRules = []NameRule{
	titleRule,
	RegexRule(`(?is)<meta[^>]+property=["']og:title["'][^>]+content=["']([^"']+)["']`),
	RegexRule(`(?is)<meta[^>]+name=["']application-name["'][^>]+content=["']([^"']+)["']`),
	RegexRule(`(?is)<h1[^>]*>\s*([^<]+?)\s*</h1>`),
}

// ExtractIPFromHostname recovers an IPv4 address embedded in a DNS name:
// "192-168-1-20.local", "20.1.168.192.in-addr.arpa" or "192.168.1.20.lan".
func ExtractIPFromHostname(name string) (string, bool) {
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
	if name == "" {
		return "", false
	}
	parts := strings.Split(name, ".")

	if strings.HasSuffix(name, ".in-addr.arpa") && len(parts) >= 6 {
		candidate := parts[3] + "." + parts[2] + "." + parts[1] + "." + parts[0]
		return parseIPv4(candidate)
	}
	if label := parts[0]; strings.Count(label, "-") == 3 {
		if ip, ok := parseIPv4(strings.ReplaceAll(label, "-", ".")); ok {
			return ip, true
		}
	}
	if len(parts) >= 4 {
		return parseIPv4(strings.Join(parts[:4], "."))
	}
	return "", false
}

func parseIPv4(candidate string) (string, bool) {
	ip := net.ParseIP(candidate)
	if ip == nil || ip.To4() == nil {
		return "", false
	}
	return ip.To4().String(), true
}

// NameFromMDNS turns an advertised host or instance name into a display
// label: the ".local" suffix and any trailing dot go, then the first label
// is kept.
func NameFromMDNS(raw string) string {
	name := strings.TrimSuffix(strings.TrimSpace(raw), ".")
	name = strings.TrimSuffix(name, ".local")
	if idx := strings.Index(name, "."); idx > 0 {
		name = name[:idx]
	}
	return CleanDeviceName(name)
}
