package scan

import (
	"context"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const zeroMAC = "00:00:00:00:00:00"

var strictMACPattern = regexp.MustCompile(`^([0-9a-fA-F]{2}[:-]){5}[0-9a-fA-F]{2}$`)

type cachedName struct {
	name string
	ok   bool
}

// Identity turns an IP address into a display name and hardware address.
// Hostname outcomes, including misses, are cached for the process lifetime.
type Identity struct {
	inspector   Inspector
	log         *zap.Logger
	dnsTimeout  time.Duration
	synthetic   bool
	lookupAddr  func(context.Context, string) ([]string, error)
	lookupCNAME func(context.Context, string) (string, error)

	mu    sync.RWMutex
	cache map[string]cachedName
}

// IdentityOption customises an Identity.
type IdentityOption func(*Identity)

// WithDNSTimeout bounds the reverse DNS step.
func WithDNSTimeout(d time.Duration) IdentityOption {
	return func(r *Identity) { r.dnsTimeout = d }
}

// WithSyntheticNames toggles neighbor-derived and "Device <octet>" names.
func WithSyntheticNames(enabled bool) IdentityOption {
	return func(r *Identity) { r.synthetic = enabled }
}

// WithIdentityLogger sets the logger.
func WithIdentityLogger(log *zap.Logger) IdentityOption {
	return func(r *Identity) { r.log = log }
}

// WithResolver replaces the reverse and canonical name lookups.
func WithResolver(lookupAddr func(context.Context, string) ([]string, error), lookupCNAME func(context.Context, string) (string, error)) IdentityOption {
	return func(r *Identity) {
		r.lookupAddr = lookupAddr
		r.lookupCNAME = lookupCNAME
	}
}

// NewIdentity builds a resolver on top of the inspector.
func NewIdentity(inspector Inspector, opts ...IdentityOption) *Identity {
	resolver := &net.Resolver{PreferGo: false}
	r := &Identity{
		inspector:   inspector,
		log:         zap.NewNop(),
		dnsTimeout:  DefaultConfig().DNSTimeout,
		synthetic:   true,
		lookupAddr:  resolver.LookupAddr,
		lookupCNAME: resolver.LookupCNAME,
		cache:       make(map[string]cachedName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveHostname returns a display name for ip. The cascade is reverse
// DNS, then LAN name services, then names synthesised from the neighbor
// table and the address itself.
func (r *Identity) ResolveHostname(ctx context.Context, ip string) (string, bool) {
	r.mu.RLock()
	cached, hit := r.cache[ip]
	r.mu.RUnlock()
	if hit {
		return cached.name, cached.ok
	}

	name, ok := r.resolveUncached(ctx, ip)
	if ctx.Err() != nil && !ok {
		// A cancelled lookup says nothing about the host.
		return "", false
	}

	r.mu.Lock()
	r.cache[ip] = cachedName{name: name, ok: ok}
	r.mu.Unlock()
	return name, ok
}

func (r *Identity) resolveUncached(ctx context.Context, ip string) (string, bool) {
	if name, ok := r.reverseDNS(ctx, ip); ok {
		return name, true
	}

	if r.inspector != nil {
		if name, ok := r.inspector.LookupNameService(ctx, ip); ok {
			return name, true
		}
	}

	if !r.synthetic {
		return "", false
	}

	if r.inspector != nil {
		if n, ok := r.inspector.LookupNeighbor(ctx, ip); ok {
			return neighborName(n, ip), true
		}
	}

	if !IsValidIPv4(ip) {
		return "", false
	}
	return "Device " + lastOctet(ip), true
}

func (r *Identity) reverseDNS(ctx context.Context, ip string) (string, bool) {
	if r.lookupAddr == nil {
		return "", false
	}
	dnsCtx, cancel := context.WithTimeout(ctx, r.dnsTimeout)
	defer cancel()

	names, err := r.lookupAddr(dnsCtx, ip)
	if err != nil || len(names) == 0 {
		return "", false
	}
	host := strings.TrimSuffix(names[0], ".")

	if r.lookupCNAME != nil {
		if canonical, err := r.lookupCNAME(dnsCtx, names[0]); err == nil {
			canonical = strings.TrimSuffix(canonical, ".")
			if canonical != "" && canonical != ip {
				return canonical, true
			}
		}
	}

	if host != "" && host != ip {
		return host, true
	}
	return "", false
}

func neighborName(n Neighbor, ip string) string {
	kind := linkKind(n.Interface)
	if usableMAC(n.MAC) {
		if vendor, ok := MacVendor(macPrefix(n.MAC)); ok {
			return vendor + " " + kind
		}
	}
	return kind + " on " + lastOctet(ip)
}

// linkKind classifies an interface name as WiFi, Ethernet or Device.
func linkKind(iface string) string {
	name := strings.ToLower(iface)
	switch {
	case strings.Contains(name, "wlan"), strings.Contains(name, "wifi"), strings.HasPrefix(name, "wl"):
		return "WiFi"
	case strings.HasPrefix(name, "eth"), strings.HasPrefix(name, "en"):
		return "Ethernet"
	default:
		return "Device"
	}
}

// ResolveMAC returns the validated hardware address of ip from the
// neighbor table.
func (r *Identity) ResolveMAC(ctx context.Context, ip string) (string, bool) {
	if r.inspector == nil {
		return "", false
	}
	n, ok := r.inspector.LookupNeighbor(ctx, ip)
	if !ok {
		return "", false
	}
	mac := strings.TrimSpace(n.MAC)
	if !ValidMAC(mac) {
		return "", false
	}
	return strings.ToUpper(strings.ReplaceAll(mac, "-", ":")), true
}

// ValidMAC reports whether mac is six hex octets separated by ':' or '-'
// and not all zero.
func ValidMAC(mac string) bool {
	if !strictMACPattern.MatchString(mac) {
		return false
	}
	return strings.ReplaceAll(mac, "-", ":") != zeroMAC
}

// ForgetHostnames empties the hostname cache.
func (r *Identity) ForgetHostnames() {
	r.mu.Lock()
	r.cache = make(map[string]cachedName)
	r.mu.Unlock()
}
