package scan

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	foundDelay  = 2 * time.Millisecond
	missedDelay = 5 * time.Millisecond
)

// prober sweeps a /24 with interleaved chains: chain i visits
// i, i+chains, i+2*chains, ... so neighbouring addresses are probed by
// different goroutines.
type prober struct {
	pinger    Pinger
	identity  *Identity
	collector *Collector
	log       *zap.Logger
	timeout   time.Duration
	chains    int
}

func (p *prober) run(ctx context.Context, sess *Session, prefix string) {
	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i <= p.chains; i++ {
		start := i
		g.Go(func() error {
			p.chain(gctx, sess, prefix, start)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *prober) chain(ctx context.Context, sess *Session, prefix string, start int) {
	for octet := start; octet <= HostTotal; octet += p.chains {
		if ctx.Err() != nil || !sess.Scanning() {
			return
		}

		found := p.probe(ctx, sess, hostAddress(prefix, octet))
		p.collector.Advance(sess.ID())

		delay := missedDelay
		if found {
			delay = foundDelay
		}
		if !sleepCtx(ctx, withJitter(delay)) {
			return
		}
	}
}

// probe reports whether ip answered and commits it as a ping record.
func (p *prober) probe(ctx context.Context, sess *Session, ip string) bool {
	if !p.pinger.Reachable(ctx, ip, p.timeout) {
		return false
	}
	if ctx.Err() != nil || !sess.Scanning() {
		return true
	}
	if p.collector.hasIP(ip) {
		return true
	}

	name, ok := p.identity.ResolveHostname(ctx, ip)
	if !ok {
		name = ip
	}
	mac, _ := p.identity.ResolveMAC(ctx, ip)

	device := NetworkDevice{
		Name:             name,
		IP:               ip,
		Port:             DefaultWOLPort,
		ServiceType:      PingServiceType,
		MACAddress:       mac,
		BroadcastAddress: BroadcastFor(ip),
		Vendor:           Manufacturer(mac),
		DiscoveredAt:     time.Now(),
	}

	if ctx.Err() != nil || !sess.Scanning() {
		return true
	}
	if p.collector.AddIfIPAbsent(sess.ID(), device) {
		p.log.Debug("host reachable", zap.String("ip", ip), zap.String("name", name), zap.String("mac", mac))
	}
	return true
}
