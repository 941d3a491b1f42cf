package scan

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mdlayher/arp"
	"go.uber.org/zap"
)

const (
	procARPTable     = "/proc/net/arp"
	activeARPTimeout = time.Second
)

// Neighbor is one entry of the local neighbor (ARP) table.
type Neighbor struct {
	IP        string
	MAC       string
	Interface string
}

// Inspector reads local network state: the neighbor table and the name
// services answering on the LAN.
type Inspector interface {
	LookupNeighbor(ctx context.Context, ip string) (Neighbor, bool)
	LookupNameService(ctx context.Context, ip string) (string, bool)
}

type nameSource struct {
	name   string
	lookup func(context.Context, string) []string
}

// SystemInspector is the Inspector backed by the host operating system.
type SystemInspector struct {
	log       *zap.Logger
	arpTable  string
	activeARP bool
	timeout   time.Duration
	sources   []nameSource
}

// NewSystemInspector builds an inspector. When activeARP is set and the
// neighbor table has no usable entry, an ARP request is sent on the
// interface that owns the address.
func NewSystemInspector(log *zap.Logger, activeARP bool, nameTimeout time.Duration) *SystemInspector {
	if log == nil {
		log = zap.NewNop()
	}
	if nameTimeout <= 0 {
		nameTimeout = DefaultConfig().NameTimeout
	}
	return &SystemInspector{
		log:       log,
		arpTable:  procARPTable,
		activeARP: activeARP,
		timeout:   nameTimeout,
		sources: []nameSource{
			{"netbios", lookupNetBIOS},
			{"llmnr", lookupLLMNR},
			{"smb", singleName(lookupSMBName)},
			{"getent", singleName(lookupGetent)},
		},
	}
}

// LookupNeighbor returns the neighbor entry for ip. An entry with an
// incomplete MAC is still returned when nothing better is found.
func (s *SystemInspector) LookupNeighbor(ctx context.Context, ip string) (Neighbor, bool) {
	partial, found := Neighbor{}, false

	if n, ok := readNeighborTable(s.arpTable, ip); ok {
		if usableMAC(n.MAC) {
			return n, true
		}
		partial, found = n, true
	}

	if n, ok := lookupNeighborViaARPCommand(ctx, ip); ok {
		if usableMAC(n.MAC) {
			return n, true
		}
		if !found {
			partial, found = n, true
		}
	}

	if s.activeARP {
		n, err := resolveActiveARP(ctx, ip)
		if err == nil && usableMAC(n.MAC) {
			return n, true
		}
		if err != nil {
			s.log.Debug("active arp failed", zap.String("ip", ip), zap.Error(err))
		}
	}

	return partial, found
}

// LookupNameService queries every name source in parallel and returns the
// answer of the highest priority source that produced one.
func (s *SystemInspector) LookupNameService(ctx context.Context, ip string) (string, bool) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make([][]string, len(s.sources))
	var wg sync.WaitGroup
	for i, src := range s.sources {
		wg.Add(1)
		go func(i int, src nameSource) {
			defer wg.Done()
			results[i] = src.lookup(lookupCtx, ip)
		}(i, src)
	}
	wg.Wait()

	return firstName(results, ip, func(i int, name string) {
		s.log.Debug("name service answered",
			zap.String("ip", ip),
			zap.String("source", s.sources[i].name),
			zap.String("name", name))
	})
}

// firstName picks the first usable name in priority order.
func firstName(results [][]string, ip string, found func(int, string)) (string, bool) {
	for i, names := range results {
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" || name == ip {
				continue
			}
			if found != nil {
				found(i, name)
			}
			return name, true
		}
	}
	return "", false
}

func singleName(fn func(context.Context, string) string) func(context.Context, string) []string {
	return func(ctx context.Context, ip string) []string {
		if name := fn(ctx, ip); name != "" {
			return []string{name}
		}
		return nil
	}
}

func usableMAC(mac string) bool {
	return mac != "" && mac != zeroMAC
}

// readNeighborTable scans a /proc/net/arp formatted file.
func readNeighborTable(path, ip string) (Neighbor, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Neighbor{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		if n, ok := parseNeighborLine(scanner.Text(), ip); ok {
			return n, true
		}
	}
	return Neighbor{}, false
}

// parseNeighborLine parses "IP HWtype Flags HWaddress Mask Device".
func parseNeighborLine(line, ip string) (Neighbor, bool) {
	fields := whitespacePattern.Split(strings.TrimSpace(line), -1)
	if len(fields) < 4 || fields[0] != ip {
		return Neighbor{}, false
	}
	n := Neighbor{IP: ip, MAC: strings.ToUpper(fields[3])}
	if len(fields) >= 6 {
		n.Interface = fields[5]
	}
	return n, true
}

func lookupNeighborViaARPCommand(ctx context.Context, ip string) (Neighbor, bool) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "arp", "-a", ip)
	} else {
		cmd = exec.CommandContext(ctx, "arp", "-n", ip)
	}
	output, err := cmd.Output()
	if err != nil {
		return Neighbor{}, false
	}
	return parseARPCommandOutput(string(output), ip)
}

func parseARPCommandOutput(output, ip string) (Neighbor, bool) {
	for _, line := range strings.Split(output, "\n") {
		fields := whitespacePattern.Split(strings.TrimSpace(line), -1)
		if !containsField(fields, ip) && !strings.Contains(line, "("+ip+")") {
			continue
		}
		mac := normaliseMAC(macLinePattern.FindString(line))
		if mac == "" {
			continue
		}
		n := Neighbor{IP: ip, MAC: mac}
		// Linux: "ip ether mac C iface", BSD: "? (ip) at mac on iface ..."
		for i, f := range fields {
			if f == "on" && i+1 < len(fields) {
				n.Interface = fields[i+1]
			}
		}
		if n.Interface == "" && len(fields) >= 5 && fields[0] == ip {
			n.Interface = fields[len(fields)-1]
		}
		return n, true
	}
	return Neighbor{}, false
}

func containsField(fields []string, value string) bool {
	for _, f := range fields {
		if f == value {
			return true
		}
	}
	return false
}

// resolveActiveARP sends an ARP request from the interface whose network
// contains ip. It needs raw socket privileges.
func resolveActiveARP(ctx context.Context, ip string) (Neighbor, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return Neighbor{}, errors.New("not an IPv4 address")
	}

	iface, err := interfaceFor(addr)
	if err != nil {
		return Neighbor{}, err
	}

	client, err := arp.Dial(iface)
	if err != nil {
		return Neighbor{}, err
	}
	defer client.Close()

	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > activeARPTimeout {
		deadline = time.Now().Add(activeARPTimeout)
	}
	if err := client.SetDeadline(deadline); err != nil {
		return Neighbor{}, err
	}

	hw, err := client.Resolve(addr)
	if err != nil {
		return Neighbor{}, err
	}
	return Neighbor{IP: ip, MAC: normaliseMAC(hw.String()), Interface: iface.Name}, nil
}

func interfaceFor(addr netip.Addr) (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	target := net.IP(addr.AsSlice())
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipNet, ok := a.(*net.IPNet); ok && ipNet.Contains(target) {
				return iface, nil
			}
		}
	}
	return nil, errors.New("no interface on the target network")
}

// lookupGetent resolves through the system name service switch, which
// covers /etc/hosts, mDNS and WINS plugins when configured.
func lookupGetent(ctx context.Context, ip string) string {
	if runtime.GOOS == "windows" {
		return ""
	}
	output, err := exec.CommandContext(ctx, "getent", "hosts", ip).Output()
	if err != nil {
		return ""
	}
	return parseGetentOutput(string(output), ip)
}

func parseGetentOutput(output, ip string) string {
	for _, line := range strings.Split(output, "\n") {
		fields := whitespacePattern.Split(strings.TrimSpace(line), -1)
		if len(fields) < 2 || fields[0] != ip {
			continue
		}
		for _, name := range fields[1:] {
			if name != ip {
				return strings.TrimSuffix(name, ".")
			}
		}
	}
	return ""
}
