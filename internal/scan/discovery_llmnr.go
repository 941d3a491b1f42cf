package scan

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	llmnrPort    = "5355"
	llmnrTimeout = time.Second
)

// lookupLLMNR sends a unicast LLMNR reverse query (RFC 4795) to the host.
func lookupLLMNR(ctx context.Context, host string) []string {
	query, err := buildLLMNRQuery(host)
	if err != nil {
		return nil
	}

	client := &dns.Client{Net: "udp", Timeout: llmnrTimeout}
	resp, _, err := client.ExchangeContext(ctx, query, net.JoinHostPort(host, llmnrPort))
	if err != nil {
		return nil
	}
	return parseLLMNRResponse(resp)
}

func buildLLMNRQuery(host string) (*dns.Msg, error) {
	arpa, err := dns.ReverseAddr(host)
	if err != nil {
		return nil, err
	}
	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = false
	return msg, nil
}

func parseLLMNRResponse(resp *dns.Msg) []string {
	if resp == nil || resp.Rcode != dns.RcodeSuccess {
		return nil
	}
	var names []string
	for _, rr := range resp.Answer {
		ptr, ok := rr.(*dns.PTR)
		if !ok {
			continue
		}
		name := strings.TrimSuffix(ptr.Ptr, ".")
		name = strings.TrimSuffix(name, ".local")
		names = append(names, name)
	}
	return orderedUnique(names)
}
