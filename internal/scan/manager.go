package scan

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"lanwake/internal/logging"
)

// Manager orchestrates scans: the ICMP sweep and the service listeners
// write into one Collector and observers receive snapshots on change.
type Manager struct {
	cfg       Config
	log       *zap.Logger
	pinger    Pinger
	browser   Browser
	inspector Inspector
	detector  SubnetDetector
	identity  *Identity

	collector *Collector
	adapter   *discoveryAdapter
	prober    *prober

	mu      sync.Mutex
	session *Session
	subnet  string

	subMu       sync.Mutex
	subscribers map[chan Snapshot]struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option { return func(m *Manager) { m.log = log } }

// WithPinger replaces the ICMP reachability check.
func WithPinger(p Pinger) Option { return func(m *Manager) { m.pinger = p } }

// WithBrowser replaces the mDNS browser.
func WithBrowser(b Browser) Option { return func(m *Manager) { m.browser = b } }

// WithInspector replaces the local network inspector.
func WithInspector(i Inspector) Option { return func(m *Manager) { m.inspector = i } }

// WithDetector replaces subnet detection.
func WithDetector(d SubnetDetector) Option { return func(m *Manager) { m.detector = d } }

// WithIdentity replaces the identity resolver.
func WithIdentity(r *Identity) Option { return func(m *Manager) { m.identity = r } }

// NewManager creates a Manager. Components not supplied through options
// use the operating system.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.ServiceTypes) == 0 {
		cfg.ServiceTypes = append([]string(nil), ServiceTypes...)
	}
	if cfg.PriorityServices == nil {
		cfg.PriorityServices = append([]string(nil), PriorityServiceTypes...)
	}

	m := &Manager{
		cfg:         cfg,
		subscribers: make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.log == nil {
		m.log = logging.Named("scan")
	}
	if m.pinger == nil {
		m.pinger = ICMPPinger{}
	}
	if m.inspector == nil {
		m.inspector = NewSystemInspector(m.log.Named("inspector"), cfg.ActiveARP, cfg.NameTimeout)
	}
	if m.identity == nil {
		m.identity = NewIdentity(m.inspector,
			WithDNSTimeout(cfg.DNSTimeout),
			WithSyntheticNames(cfg.SyntheticNames),
			WithIdentityLogger(m.log.Named("identity")),
		)
	}
	if m.browser == nil {
		m.browser = NewZeroconfBrowser(m.log.Named("mdns"))
	}
	if m.detector == nil {
		m.detector = newSystemDetector(m.pinger, m.log)
	}

	m.collector = newCollector(HostTotal)
	m.collector.onChange = m.publish
	m.adapter = newDiscoveryAdapter(m.browser, m.identity, m.collector, m.log.Named("discovery"))
	m.prober = &prober{
		pinger:    m.pinger,
		identity:  m.identity,
		collector: m.collector,
		log:       m.log.Named("probe"),
		timeout:   cfg.PingTimeout,
		chains:    cfg.Chains,
	}
	return m, nil
}

// Start begins a scan and returns immediately. Cancelling ctx ends the
// scan the same way Stop does.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.session != nil && m.session.Scanning() {
		m.mu.Unlock()
		return ErrScanInProgress
	}
	previous := m.session
	sess := newSession(ctx)
	m.session = sess
	m.mu.Unlock()

	if previous != nil {
		previous.teardown()
	}
	m.adapter.stopAll()
	m.adapter.clearPending()
	m.collector.Reset(sess.ID())

	m.log.Info("scan started", zap.String("session", sess.ID()))
	go m.run(sess)
	return nil
}

func (m *Manager) run(sess *Session) {
	defer sess.markDone()
	log := m.log.With(zap.String("session", sess.ID()))

	var probes sync.WaitGroup
	if prefix, ok := m.detector.Detect(sess.probeCtx); ok {
		m.setSubnet(prefix)
		if sess.Scanning() {
			log.Debug("sweeping subnet", zap.String("prefix", prefix), zap.Int("chains", m.cfg.Chains))
			probes.Add(1)
			go func() {
				defer probes.Done()
				m.prober.run(sess.probeCtx, sess, prefix)
			}()
		}
	} else {
		log.Warn("local subnet not found, ping sweep skipped")
	}

	first, rest := splitServiceTypes(m.cfg.ServiceTypes, m.cfg.PriorityServices)
	m.startListeners(sess, first, m.cfg.PriorityStagger)
	if sess.Scanning() {
		sleepCtx(sess.ctx, m.cfg.ListenerPause)
	}
	m.startListeners(sess, rest, m.cfg.Stagger)

	if sleepCtx(sess.ctx, m.cfg.Window) && sess.Scanning() {
		sess.cancelProbes()
		if sess.finish() {
			log.Info("scan window elapsed", zap.Int("devices", m.collector.Len()))
			m.publish()
		}
		sleepCtx(sess.ctx, m.cfg.Grace)
		m.adapter.stopSession(sess.ID())
	}

	if sess.finish() {
		log.Info("scan cancelled")
		m.publish()
	}
	sess.teardown()
	probes.Wait()
	sess.work.Wait()
}

func (m *Manager) startListeners(sess *Session, types []string, stagger time.Duration) {
	for _, serviceType := range types {
		if !sess.Scanning() {
			return
		}
		m.adapter.start(sess, serviceType)
		if !sleepCtx(sess.ctx, stagger) {
			return
		}
	}
}

// Stop cancels the running scan immediately. It is safe to call at any
// time, including repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	if sess != nil {
		if sess.finish() {
			m.log.Info("scan stopped", zap.String("session", sess.ID()))
		}
		sess.teardown()
		m.adapter.stopSession(sess.ID())
	}
	m.adapter.clearPending()
	m.collector.Detach()
}

// Wait blocks until the most recent scan goroutine has exited.
func (m *Manager) Wait() {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess != nil {
		<-sess.done
	}
}

// ClearResults empties the device list and pending candidates.
func (m *Manager) ClearResults() {
	m.adapter.clearPending()
	m.collector.Clear()
}

// State returns the current scan status.
func (m *Manager) State() ScanState {
	m.mu.Lock()
	scanning := m.session != nil && m.session.Scanning()
	m.mu.Unlock()

	progress, total := m.collector.Progress()
	return ScanState{IsScanning: scanning, Progress: progress, Total: total}
}

// Devices returns the devices found so far.
func (m *Manager) Devices() []NetworkDevice {
	return m.collector.Devices()
}

// Snapshot returns a copy of the full manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	var id string
	if m.session != nil {
		id = m.session.ID()
	}
	subnet := m.subnet
	m.mu.Unlock()

	return Snapshot{
		Session: id,
		Subnet:  subnet,
		State:   m.State(),
		Devices: m.collector.Devices(),
		Updated: time.Now(),
	}
}

// LocalSubnet returns the /24 prefix seen by the last scan, detecting it
// now if no scan has run.
func (m *Manager) LocalSubnet(ctx context.Context) (string, bool) {
	m.mu.Lock()
	subnet := m.subnet
	m.mu.Unlock()
	if subnet != "" {
		return subnet, true
	}

	prefix, ok := m.detector.Detect(ctx)
	if ok {
		m.setSubnet(prefix)
	}
	return prefix, ok
}

func (m *Manager) setSubnet(prefix string) {
	m.mu.Lock()
	m.subnet = prefix
	m.mu.Unlock()
}

// Subscribe returns a channel receiving a snapshot after every change,
// starting with the current state. Slow readers only see the latest
// snapshot. The returned function unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	ch <- m.Snapshot()

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subscribers, ch)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) publish() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if len(m.subscribers) == 0 {
		return
	}

	snap := m.Snapshot()
	for ch := range m.subscribers {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Replace the oldest queued snapshot.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
