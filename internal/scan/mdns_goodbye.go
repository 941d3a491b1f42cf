package scan

import (
	"context"
	"net"
	"strings"

	"github.com/miekg/dns"
)

const (
	mdnsGroupAddr = "224.0.0.251:5353"
	mdnsMaxPacket = 9000
)

func listenMDNS() (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp4", mdnsGroupAddr)
	if err != nil {
		return nil, err
	}
	return net.ListenMulticastUDP("udp4", nil, addr)
}

// readGoodbyes emits a Lost event for every instance of serviceType
// withdrawn on conn until ctx ends. It closes conn.
func readGoodbyes(ctx context.Context, conn *net.UDPConn, serviceType string, events chan<- ServiceEvent) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	zone := zeroconfService(serviceType) + "." + mdnsDomain
	buf := make([]byte, mdnsMaxPacket)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msg := new(dns.Msg)
		if err := msg.Unpack(buf[:n]); err != nil {
			continue
		}
		for _, instance := range goodbyeInstances(msg, zone) {
			ev := ServiceEvent{
				Kind:        EventLost,
				ServiceType: serviceType,
				Record:      ServiceRecord{Name: instance, ServiceType: serviceType, Domain: mdnsDomain},
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// goodbyeInstances returns the instance names that a response withdraws
// from zone ("_http._tcp.local."), i.e. its PTR records with TTL 0.
func goodbyeInstances(msg *dns.Msg, zone string) []string {
	if msg == nil || !msg.Response {
		return nil
	}
	suffix := "." + zone
	var names []string
	for _, section := range [][]dns.RR{msg.Answer, msg.Extra} {
		for _, rr := range section {
			ptr, ok := rr.(*dns.PTR)
			if !ok || ptr.Hdr.Ttl != 0 || !strings.EqualFold(ptr.Hdr.Name, zone) {
				continue
			}
			if len(ptr.Ptr) <= len(suffix) || !strings.EqualFold(ptr.Ptr[len(ptr.Ptr)-len(suffix):], suffix) {
				continue
			}
			names = append(names, ptr.Ptr[:len(ptr.Ptr)-len(suffix)])
		}
	}
	return names
}

// unescapeInstance decodes the `\DDD` and `\X` escapes of a DNS label.
func unescapeInstance(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			if v := int(s[i+1]-'0')*100 + int(s[i+2]-'0')*10 + int(s[i+3]-'0'); v < 256 {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i+1])
		i++
	}
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
