// Package wol builds and sends Wake-on-LAN magic packets.
package wol

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"lanwake/internal/logging"
	"lanwake/internal/scan"
)

const (
	// DefaultPort is the discard port conventionally used for WOL.
	DefaultPort = 9
	// PacketSize is 6 sync bytes plus 16 copies of the MAC.
	PacketSize = 6 + 16*6

	sendTimeout = 2 * time.Second
)

// ErrInvalidMAC is returned for addresses that are not 12 hex digits.
var ErrInvalidMAC = errors.New("invalid MAC address")

// ParseMAC strips ':', '-' and spaces and decodes the remaining 12 hex
// digits.
func ParseMAC(mac string) (net.HardwareAddr, error) {
	cleaned := strings.NewReplacer(":", "", "-", "", " ", "").Replace(mac)
	if len(cleaned) != 12 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	return net.HardwareAddr(raw), nil
}

// ValidMAC reports whether ParseMAC accepts mac.
func ValidMAC(mac string) bool {
	_, err := ParseMAC(mac)
	return err == nil
}

// MagicPacket returns the 102 byte payload for mac.
func MagicPacket(mac string) ([]byte, error) {
	hw, err := ParseMAC(mac)
	if err != nil {
		return nil, err
	}
	packet := make([]byte, 0, PacketSize)
	for i := 0; i < 6; i++ {
		packet = append(packet, 0xFF)
	}
	for i := 0; i < 16; i++ {
		packet = append(packet, hw...)
	}
	return packet, nil
}

// SelectBroadcast picks the destination for a wake packet: the device's
// own /24 broadcast, else the local subnet's, else the limited broadcast.
func SelectBroadcast(deviceIP, localSubnet string) string {
	if b, ok := scan.InferBroadcastAddress(deviceIP); ok {
		return b
	}
	if localSubnet != "" {
		if b, ok := scan.InferBroadcastAddress(localSubnet + ".0"); ok {
			return b
		}
	}
	return scan.LimitedBroadcast
}

// Transmitter sends magic packets over UDP.
type Transmitter struct {
	log    *zap.Logger
	listen func(ctx context.Context) (net.PacketConn, error)
}

// NewTransmitter returns a Transmitter that sends from an ephemeral UDP
// port.
func NewTransmitter(log *zap.Logger) *Transmitter {
	if log == nil {
		log = logging.Named("wol")
	}
	return &Transmitter{log: log, listen: listenUDP}
}

// Go sets SO_BROADCAST on every UDP socket it creates, so a plain
// ListenPacket can address broadcast destinations.
func listenUDP(ctx context.Context) (net.PacketConn, error) {
	var lc net.ListenConfig
	return lc.ListenPacket(ctx, "udp4", ":0")
}

// Send delivers one magic packet for mac to broadcast:port. Port 0 means
// DefaultPort. It returns false for a malformed MAC without touching the
// network.
func (t *Transmitter) Send(ctx context.Context, mac, broadcast string, port int) bool {
	packet, err := MagicPacket(mac)
	if err != nil {
		t.log.Warn("refusing to send wake packet", zap.String("mac", mac), zap.Error(err))
		return false
	}
	if port <= 0 {
		port = DefaultPort
	}
	if broadcast == "" {
		broadcast = scan.LimitedBroadcast
	}

	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(broadcast, strconv.Itoa(port)))
	if err != nil {
		t.log.Warn("invalid wake destination", zap.String("broadcast", broadcast), zap.Error(err))
		return false
	}

	conn, err := t.listen(ctx)
	if err != nil {
		t.log.Warn("opening wake socket failed", zap.Error(err))
		return false
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(sendTimeout)
	}
	_ = conn.SetWriteDeadline(deadline)

	n, err := conn.WriteTo(packet, addr)
	if err != nil || n != len(packet) {
		t.log.Warn("sending wake packet failed", zap.String("mac", mac), zap.String("to", addr.String()), zap.Error(err))
		return false
	}

	t.log.Info("wake packet sent", zap.String("mac", mac), zap.String("to", addr.String()))
	return true
}
