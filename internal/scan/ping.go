package scan

import (
	"context"
	"runtime"
	"time"

	ping "github.com/go-ping/ping"
)

// pingGuard bounds how long Reachable waits past the echo timeout for the
// pinger to report.
const pingGuard = 500 * time.Millisecond

// Pinger checks whether a host answers an ICMP echo.
type Pinger interface {
	Reachable(ctx context.Context, host string, timeout time.Duration) bool
}

// ICMPPinger sends a single echo request per check. Unprivileged datagram
// sockets are used except on Windows, which only supports raw sockets.
type ICMPPinger struct{}

// Reachable reports true only when an echo reply arrived in time. Permission
// and network errors count as unreachable.
func (ICMPPinger) Reachable(ctx context.Context, host string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = time.Second
	}

	pinger, err := ping.NewPinger(host)
	if err != nil {
		return false
	}
	pinger.SetPrivileged(runtime.GOOS == "windows")
	pinger.Count = 1
	pinger.Timeout = timeout

	finished := make(chan *ping.Statistics, 1)
	pinger.OnFinish = func(stats *ping.Statistics) { finished <- stats }

	failed := make(chan error, 1)
	go func() {
		if err := pinger.Run(); err != nil {
			failed <- err
		}
	}()

	guard := time.NewTimer(timeout + pingGuard)
	defer guard.Stop()

	select {
	case stats := <-finished:
		return stats.PacketsRecv > 0
	case <-failed:
		return false
	case <-ctx.Done():
		pinger.Stop()
		return false
	case <-guard.C:
		pinger.Stop()
		return false
	}
}
