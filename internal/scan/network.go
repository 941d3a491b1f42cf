package scan

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// LimitedBroadcast is used when no subnet broadcast can be inferred.
	LimitedBroadcast = "255.255.255.255"

	gatewayProbeTimeout = 500 * time.Millisecond
)

// commonPrefixes are tried, in order, when the host has no usable address.
var commonPrefixes = []string{"192.168.0", "192.168.1", "10.0.0", "10.0.1"}

// SubnetDetector finds the /24 prefix ("a.b.c") of the local network.
type SubnetDetector interface {
	Detect(ctx context.Context) (string, bool)
}

type systemDetector struct {
	pinger     Pinger
	log        *zap.Logger
	linkAddrs  func() ([]net.IP, error)
	legacy     func() (uint32, bool)
	candidates []string
	timeout    time.Duration
}

func newSystemDetector(pinger Pinger, log *zap.Logger) *systemDetector {
	return &systemDetector{
		pinger:     pinger,
		log:        log,
		linkAddrs:  interfaceAddrs,
		legacy:     legacyAddress,
		candidates: commonPrefixes,
		timeout:    gatewayProbeTimeout,
	}
}

// Detect tries link addresses, then the legacy 32-bit source address, then
// probes the gateway of a few common prefixes.
func (d *systemDetector) Detect(ctx context.Context) (string, bool) {
	ips, err := d.linkAddrs()
	if err != nil {
		d.log.Debug("listing interface addresses failed", zap.Error(err))
	}
	for _, ip := range ips {
		if prefix, ok := subnetOf(ip.String()); ok {
			return prefix, true
		}
	}

	if raw, ok := d.legacy(); ok && raw != 0 {
		if prefix, ok := subnetOf(decodeLegacyAddress(raw)); ok {
			return prefix, true
		}
	}

	for _, prefix := range d.candidates {
		if ctx.Err() != nil {
			break
		}
		if d.pinger.Reachable(ctx, prefix+".1", d.timeout) {
			return prefix, true
		}
	}
	return "", false
}

// interfaceAddrs returns the IPv4 addresses of up, non-loopback interfaces in
// interface order.
func interfaceAddrs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
				continue
			}
			out = append(out, ip4)
		}
	}
	return out, nil
}

// legacyAddress reports the source address of the default route as a
// little-endian uint32. Dialing UDP sends no packets.
func legacyAddress() (uint32, bool) {
	conn, err := net.Dial("udp4", "192.0.2.1:9")
	if err != nil {
		return 0, false
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0, false
	}
	ip4 := addr.IP.To4()
	if ip4 == nil || ip4.IsUnspecified() {
		return 0, false
	}
	return binary.LittleEndian.Uint32(ip4), true
}

// decodeLegacyAddress renders a little-endian packed IPv4 address.
func decodeLegacyAddress(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", v&0xff, (v>>8)&0xff, (v>>16)&0xff, (v>>24)&0xff)
}

// IsValidIPv4 reports whether s is a dotted-quad IPv4 address without
// leading zeros.
func IsValidIPv4(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}

// InferBroadcastAddress returns the /24 broadcast address for ip.
func InferBroadcastAddress(ip string) (string, bool) {
	prefix, ok := subnetOf(ip)
	if !ok {
		return "", false
	}
	return prefix + ".255", true
}

// BroadcastFor returns the /24 broadcast of ip, or the limited broadcast.
func BroadcastFor(ip string) string {
	if b, ok := InferBroadcastAddress(ip); ok {
		return b
	}
	return LimitedBroadcast
}

func subnetOf(ip string) (string, bool) {
	if !IsValidIPv4(ip) {
		return "", false
	}
	return ip[:strings.LastIndexByte(ip, '.')], true
}

func hostAddress(prefix string, octet int) string {
	return fmt.Sprintf("%s.%d", prefix, octet)
}

func lastOctet(ip string) string {
	if i := strings.LastIndexByte(ip, '.'); i >= 0 {
		return ip[i+1:]
	}
	return ip
}
