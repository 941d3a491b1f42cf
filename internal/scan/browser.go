package scan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

// EventKind is the lifecycle event emitted by a service listener.
type EventKind int

const (
	EventStarted EventKind = iota
	EventFound
	EventLost
	EventStopped
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventFound:
		return "found"
	case EventLost:
		return "lost"
	case EventStopped:
		return "stopped"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// ServiceRecord is an advertised service instance.
type ServiceRecord struct {
	Name        string
	ServiceType string
	Domain      string
	HostName    string
	// Host is the single address reported by resolvers that expose only one.
	Host       string
	Addresses  []net.IP
	Port       int
	Attributes map[string][]byte
}

// ServiceEvent is delivered on a listener channel.
type ServiceEvent struct {
	Kind        EventKind
	ServiceType string
	Record      ServiceRecord
	Err         error
}

// Browser listens for service advertisements on the local link.
type Browser interface {
	// Browse starts a listener. The returned channel is closed after the
	// Stopped or Failed event once ctx is cancelled.
	Browse(ctx context.Context, serviceType string) (<-chan ServiceEvent, error)
	// Resolve fills in addresses, port and attributes for a record.
	Resolve(ctx context.Context, record ServiceRecord) (ServiceRecord, error)
}

const (
	mdnsDomain          = "local."
	defaultResolveLimit = 2 * time.Second
	browseBuffer        = 16
)

// ZeroconfBrowser implements Browser with multicast DNS.
type ZeroconfBrowser struct {
	log            *zap.Logger
	resolveTimeout time.Duration
}

// NewZeroconfBrowser returns an mDNS browser.
func NewZeroconfBrowser(log *zap.Logger) *ZeroconfBrowser {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZeroconfBrowser{log: log, resolveTimeout: defaultResolveLimit}
}

// zeroconfService converts "_http._tcp." into the form zeroconf expects.
func zeroconfService(serviceType string) string {
	return strings.TrimSuffix(serviceType, ".")
}

// Browse implements Browser.
func (b *ZeroconfBrowser) Browse(ctx context.Context, serviceType string) (<-chan ServiceEvent, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("create mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, browseBuffer)
	if err := resolver.Browse(ctx, zeroconfService(serviceType), mdnsDomain, entries); err != nil {
		return nil, fmt.Errorf("browse %s: %w", serviceType, err)
	}

	// zeroconf drops goodbye packets internally, so withdrawals are read
	// from the multicast group directly.
	goodbyes, err := listenMDNS()
	if err != nil {
		b.log.Debug("goodbye listener unavailable", zap.String("type", serviceType), zap.Error(err))
	}

	events := make(chan ServiceEvent, browseBuffer)
	go func() {
		defer close(events)
		events <- ServiceEvent{Kind: EventStarted, ServiceType: serviceType}

		var wg sync.WaitGroup
		if goodbyes != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				readGoodbyes(ctx, goodbyes, serviceType, events)
			}()
		}

		// The resolver closes entries when ctx ends.
		for entry := range entries {
			if entry == nil {
				continue
			}
			events <- entryEvent(entry, serviceType)
		}
		wg.Wait()
		events <- ServiceEvent{Kind: EventStopped, ServiceType: serviceType}
	}()

	return events, nil
}

// Resolve implements Browser. Records that already carry an address are
// returned unchanged.
func (b *ZeroconfBrowser) Resolve(ctx context.Context, record ServiceRecord) (ServiceRecord, error) {
	if len(record.Addresses) > 0 || record.Host != "" {
		return record, nil
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return record, fmt.Errorf("create mdns resolver: %w", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, b.resolveTimeout)
	defer cancel()

	domain := record.Domain
	if domain == "" {
		domain = mdnsDomain
	}
	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := resolver.Lookup(lookupCtx, record.Name, zeroconfService(record.ServiceType), domain, entries); err != nil {
		return record, fmt.Errorf("lookup %s: %w", record.Name, err)
	}

	for {
		select {
		case <-lookupCtx.Done():
			return record, errors.New("resolve timed out")
		case entry, ok := <-entries:
			if !ok {
				return record, errors.New("resolve returned no entries")
			}
			if entry == nil || (len(entry.AddrIPv4) == 0 && len(entry.AddrIPv6) == 0) {
				continue
			}
			resolved := recordFromEntry(entry, record.ServiceType)
			if resolved.Name == "" {
				resolved.Name = record.Name
			}
			return resolved, nil
		}
	}
}

// entryEvent maps a browse entry to a Found event. zeroconf only delivers
// live entries.
func entryEvent(entry *zeroconf.ServiceEntry, serviceType string) ServiceEvent {
	return ServiceEvent{Kind: EventFound, ServiceType: serviceType, Record: recordFromEntry(entry, serviceType)}
}

func recordFromEntry(entry *zeroconf.ServiceEntry, serviceType string) ServiceRecord {
	rec := ServiceRecord{
		Name:        entry.Instance,
		ServiceType: serviceType,
		Domain:      entry.Domain,
		HostName:    strings.TrimSuffix(entry.HostName, "."),
		Port:        entry.Port,
		Attributes:  parseTXT(entry.Text),
	}
	rec.Addresses = append(rec.Addresses, entry.AddrIPv4...)
	rec.Addresses = append(rec.Addresses, entry.AddrIPv6...)
	return rec
}
