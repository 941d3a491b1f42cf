package scan

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

type listener struct {
	session string
	cancel  context.CancelFunc
}

// discoveryAdapter runs one listener per service type and turns resolved
// advertisements into devices.
type discoveryAdapter struct {
	browser     Browser
	identity    *Identity
	collector   *Collector
	log         *zap.Logger
	airplayName func(ctx context.Context, host string, port int) string

	mu        sync.Mutex
	listeners map[string]*listener
	pending   map[candidate]ServiceRecord
}

// candidate identifies an advertisement awaiting resolution.
type candidate struct {
	name        string
	serviceType string
}

func newDiscoveryAdapter(browser Browser, identity *Identity, collector *Collector, log *zap.Logger) *discoveryAdapter {
	return &discoveryAdapter{
		browser:     browser,
		identity:    identity,
		collector:   collector,
		log:         log,
		airplayName: fetchAirPlayName,
		listeners:   make(map[string]*listener),
		pending:     make(map[candidate]ServiceRecord),
	}
}

// start registers a listener for serviceType unless one is already running.
func (a *discoveryAdapter) start(sess *Session, serviceType string) {
	if !sess.Scanning() {
		return
	}

	a.mu.Lock()
	if _, ok := a.listeners[serviceType]; ok {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(sess.ctx)
	l := &listener{session: sess.ID(), cancel: cancel}
	a.listeners[serviceType] = l
	a.mu.Unlock()

	events, err := a.browser.Browse(ctx, serviceType)
	if err != nil {
		a.log.Warn("service listener failed to start", zap.String("type", serviceType), zap.Error(err))
		a.drop(serviceType, l)
		return
	}

	sess.work.Add(1)
	go a.consume(sess, serviceType, l, events)
}

func (a *discoveryAdapter) consume(sess *Session, serviceType string, l *listener, events <-chan ServiceEvent) {
	defer sess.work.Done()
	defer a.drop(serviceType, l)

	for ev := range events {
		if ev.Record.ServiceType == "" {
			ev.Record.ServiceType = serviceType
		}
		switch ev.Kind {
		case EventStarted:
			a.log.Debug("service listener started", zap.String("type", serviceType))
		case EventFound:
			a.found(sess, ev.Record)
		case EventLost:
			a.lost(sess, ev.Record)
		case EventStopped:
			a.log.Debug("service listener stopped", zap.String("type", serviceType))
			a.drop(serviceType, l)
		case EventFailed:
			a.log.Warn("service listener failed", zap.String("type", serviceType), zap.Error(ev.Err))
			a.drop(serviceType, l)
		}
	}
}

// drop removes the registry entry if it still belongs to l and cancels it.
func (a *discoveryAdapter) drop(serviceType string, l *listener) {
	a.mu.Lock()
	if current, ok := a.listeners[serviceType]; ok && current == l {
		delete(a.listeners, serviceType)
	}
	a.mu.Unlock()
	l.cancel()
}

func candidateKey(rec ServiceRecord) candidate {
	return candidate{name: rec.Name, serviceType: rec.ServiceType}
}

func (a *discoveryAdapter) found(sess *Session, rec ServiceRecord) {
	if !sess.Scanning() {
		return
	}
	key := candidateKey(rec)

	a.mu.Lock()
	if _, ok := a.pending[key]; ok {
		a.mu.Unlock()
		return
	}
	a.pending[key] = rec
	a.mu.Unlock()

	sess.work.Add(1)
	go func() {
		defer sess.work.Done()
		a.resolve(sess, key, rec)
	}()
}

func (a *discoveryAdapter) resolve(sess *Session, key candidate, rec ServiceRecord) {
	resolved, err := a.browser.Resolve(sess.ctx, rec)

	a.mu.Lock()
	delete(a.pending, key)
	a.mu.Unlock()

	if err != nil {
		a.log.Debug("service resolve failed", zap.String("name", rec.Name), zap.String("type", rec.ServiceType), zap.Error(err))
		return
	}
	if resolved.ServiceType == "" {
		resolved.ServiceType = rec.ServiceType
	}
	if resolved.Name == "" {
		resolved.Name = rec.Name
	}
	a.commit(sess, resolved)
}

func (a *discoveryAdapter) commit(sess *Session, rec ServiceRecord) {
	if !sess.Scanning() {
		return
	}

	ip := pickIPv4(rec)
	if ip == "" {
		a.log.Debug("no usable IPv4 address", zap.String("name", rec.Name))
		return
	}

	name, fromTXT := friendlyName(rec.Attributes, ip)
	if !fromTXT {
		name = rec.Name
	}
	name = cleanServiceName(name, rec.ServiceType)
	if !fromTXT && isAirPlayFamily(rec.ServiceType) && a.airplayName != nil {
		if n := a.airplayName(sess.ctx, ip, rec.Port); n != "" {
			name = n
		}
	}

	mac, _ := a.identity.ResolveMAC(sess.ctx, ip)
	device := NetworkDevice{
		Name:             name,
		IP:               ip,
		Port:             uint16(rec.Port),
		ServiceType:      rec.ServiceType,
		MACAddress:       mac,
		BroadcastAddress: BroadcastFor(ip),
		Vendor:           Manufacturer(mac),
		DiscoveredAt:     time.Now(),
	}

	if !sess.Scanning() {
		return
	}
	if a.collector.AddIfNameAbsent(sess.ID(), device) {
		a.log.Debug("service resolved", zap.String("name", device.Name), zap.String("ip", ip), zap.String("type", rec.ServiceType))
	}
}

// lost drops the pending candidate and, while scanning, the committed
// devices of a withdrawn service. Withdrawals may carry the escaped wire
// form of the instance, and devices without a TXT name were committed under
// the cleaned name, so every form is matched.
func (a *discoveryAdapter) lost(sess *Session, rec ServiceRecord) {
	names := lostNames(rec)

	a.mu.Lock()
	for _, name := range names {
		delete(a.pending, candidate{name: name, serviceType: rec.ServiceType})
	}
	a.mu.Unlock()

	if !sess.Scanning() {
		return
	}
	for _, name := range names {
		a.collector.RemoveService(name, rec.ServiceType)
	}
}

func lostNames(rec ServiceRecord) []string {
	plain := unescapeInstance(rec.Name)
	names := []string{rec.Name, plain, cleanServiceName(plain, rec.ServiceType)}
	out := names[:0]
	for _, n := range names {
		if n == "" || containsField(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// pickIPv4 returns the first non-loopback IPv4 address, falling back to the
// single host field when it holds one. It returns "" when neither does.
func pickIPv4(rec ServiceRecord) string {
	for _, addr := range rec.Addresses {
		ip4 := addr.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		return ip4.String()
	}
	if IsValidIPv4(rec.Host) && !net.ParseIP(rec.Host).IsLoopback() {
		return rec.Host
	}
	return ""
}

// stopSession cancels every listener owned by the session.
func (a *discoveryAdapter) stopSession(sessionID string) {
	a.mu.Lock()
	var stale []*listener
	for serviceType, l := range a.listeners {
		if l.session == sessionID {
			stale = append(stale, l)
			delete(a.listeners, serviceType)
		}
	}
	a.mu.Unlock()

	for _, l := range stale {
		l.cancel()
	}
}

// stopAll cancels every listener regardless of owner.
func (a *discoveryAdapter) stopAll() {
	a.mu.Lock()
	all := a.listeners
	a.listeners = make(map[string]*listener)
	a.mu.Unlock()

	for _, l := range all {
		l.cancel()
	}
}

func (a *discoveryAdapter) clearPending() {
	a.mu.Lock()
	a.pending = make(map[candidate]ServiceRecord)
	a.mu.Unlock()
}

func (a *discoveryAdapter) activeListeners() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.listeners)
}

func (a *discoveryAdapter) pendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
