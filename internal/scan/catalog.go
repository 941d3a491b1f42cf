package scan

// ServiceTypes is the fixed set of advertisement types browsed during a scan.
var ServiceTypes = []string{
	"_services._dns-sd._udp",
	"_http._tcp.",
	"_workstation._tcp.",
	"_companion-link._tcp.",
	"_ssh._tcp.",
	"_smb._tcp.",
	"_printer._tcp.",
	"_ipp._tcp.",
	"_device-info._tcp.",
	"_googlecast._tcp.",
	"_spotify-connect._tcp.",
	"_airplay._tcp.",
	"_raop._tcp.",
	"_sleep-proxy._udp",
	"_sleep-proxy._tcp",
	"_homekit._tcp",
}

// PriorityServiceTypes are started first since they identify most hosts.
var PriorityServiceTypes = []string{
	"_workstation._tcp.",
	"_http._tcp.",
	"_smb._tcp.",
}

// splitServiceTypes orders the catalog into the priority subset and the rest,
// preserving catalog order within each part.
func splitServiceTypes(all, priority []string) (first, rest []string) {
	wanted := make(map[string]struct{}, len(priority))
	for _, p := range priority {
		wanted[p] = struct{}{}
	}
	seen := make(map[string]struct{}, len(all))
	for _, p := range priority {
		for _, t := range all {
			if t == p {
				if _, dup := seen[t]; !dup {
					first = append(first, t)
					seen[t] = struct{}{}
				}
				break
			}
		}
	}
	for _, t := range all {
		if _, ok := wanted[t]; ok {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		rest = append(rest, t)
	}
	return first, rest
}
