package probe

import (
	"strconv"
	"strings"

	"github.com/endobit/oui"
)

// Manufacturer resolves the vendor owning the MAC's OUI. Locally
// administered addresses (randomised phones, containers) are reported as
// "Local Admin" since their OUI carries no vendor.
func Manufacturer(mac string) string {
	if mac == "" {
		return ""
	}
	if isLocallyAdministered(mac) {
		return "Local Admin"
	}
	if vendor := oui.Vendor(strings.ToLower(mac)); vendor != "" {
		return vendor
	}
	return "Unknown"
}

func isLocallyAdministered(mac string) bool {
	if len(mac) < 2 {
		return false
	}
	first, err := strconv.ParseUint(mac[:2], 16, 8)
	if err != nil {
		return false
	}
	return first&0x02 != 0
}
