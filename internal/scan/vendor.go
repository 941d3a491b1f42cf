package scan

import (
	"strings"

	"github.com/endobit/oui"
)

// macVendors maps well-known OUI prefixes to short vendor names used when
// synthesising device names.
var macVendors = map[string]string{
	"00:50:56": "VMware",
	"00:0C:29": "VMware",
	"00:1A:11": "Google",
	"08:00:27": "VirtualBox",
	"00:1B:44": "SanDisk",
	"00:25:00": "Apple",
	"08:00:20": "Oracle",
	"00:04:76": "3Com",
	"00:13:10": "Cisco",
	"00:1C:B3": "Apple",
	"00:1D:BA": "Sony",
	"00:21:19": "Samsung",
	"00:22:41": "Apple",
	"00:25:BC": "Apple",
	"00:26:BB": "Apple",
	"00:30:48": "Supermicro",
	"00:0E:8F": "Sercomm",
	"00:90:FB": "TP-Link",
	"18:31:BF": "Netgear",
	"B8:27:EB": "Raspberry Pi",
	"DC:A6:32": "Raspberry Pi",
	"E0:DC:FF": "Xiaomi",
	"D8:3A:DD": "Intel",
	"48:D7:05": "Apple",
	"68:DB:CA": "Apple",
	"A0:99:9B": "Apple",
}

// MacVendor returns the short vendor name for an "AA:BB:CC" prefix.
func MacVendor(prefix string) (string, bool) {
	v, ok := macVendors[strings.ToUpper(strings.ReplaceAll(prefix, "-", ":"))]
	return v, ok
}

// Manufacturer looks the MAC up in the IEEE OUI database. It returns an
// empty string when the vendor is unknown.
func Manufacturer(mac string) string {
	if mac == "" {
		return ""
	}
	return strings.TrimSpace(oui.Vendor(strings.ToLower(mac)))
}

func macPrefix(mac string) string {
	mac = strings.ToUpper(strings.ReplaceAll(mac, "-", ":"))
	if len(mac) < 8 {
		return ""
	}
	return mac[:8]
}
