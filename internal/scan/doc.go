// Package scan discovers hosts on the local IPv4 /24.
//
// A scan combines two techniques. An ICMP sweep probes every host address
// with interleaved chains of goroutines, and multicast DNS listeners collect
// service advertisements for a fixed catalog of service types. Both write
// into a Collector that deduplicates devices by IP, name, port and service
// type.
//
// Candidates are enriched before they are committed: hostnames come from
// reverse DNS, then NetBIOS, LLMNR, SMB and the system resolver, then names
// synthesised from the neighbor table. Hardware addresses come from the
// neighbor table, falling back to an active ARP request.
//
// A scan runs for a fixed window. When it elapses the sweep is cancelled,
// the scanning flag drops and listeners get a short grace period before they
// are stopped. Stop ends everything immediately.
//
//	m, err := scan.NewManager(scan.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	updates, unsubscribe := m.Subscribe()
//	defer unsubscribe()
//	if err := m.Start(ctx); err != nil {
//		return err
//	}
package scan
