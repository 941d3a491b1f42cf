package scan

import (
	"context"
	"encoding/binary"
	"net"
	"strings"
	"time"
)

const (
	nbHeaderSize     = 12
	nbEncodedName    = 34 // length byte, 32 encoded bytes, terminator
	nbNameEntrySize  = 18
	nbNameFieldSize  = 15
	nbTypeNodeStatus = 0x0021
	nbFlagGroup      = 0x8000
	nbFlagActive     = 0x0400
	nbSuffixHost     = 0x00
	nbSuffixServer   = 0x20
	nbDialTimeout    = time.Second
)

// nbNodeStatusQuery asks for the name table of "*" (RFC 1002 NBSTAT).
var nbNodeStatusQuery = []byte{
	0x82, 0x28, // transaction id
	0x00, 0x00, // flags
	0x00, 0x01, // questions
	0x00, 0x00, // answers
	0x00, 0x00, // authority
	0x00, 0x00, // additional
	0x20, 0x43, 0x4b, 0x41, 0x41, 0x41, 0x41, 0x41,
	0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41,
	0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41,
	0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41,
	0x41, 0x00,
	0x00, 0x21, // NBSTAT
	0x00, 0x01, // IN
}

// lookupNetBIOS sends a node status request to UDP 137 and returns the
// registered host names, workstation names first.
func lookupNetBIOS(ctx context.Context, host string) []string {
	conn, err := net.DialTimeout("udp4", net.JoinHostPort(host, "137"), nbDialTimeout)
	if err != nil {
		return nil
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(2 * time.Second)
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(nbNodeStatusQuery); err != nil {
		return nil
	}

	response := make([]byte, 1024)
	n, err := conn.Read(response)
	if err != nil {
		return nil
	}
	return parseNetBIOSResponse(response[:n])
}

func parseNetBIOSResponse(data []byte) []string {
	if len(data) < nbHeaderSize || data[2]&0x80 == 0 {
		return nil
	}

	offset := nbHeaderSize
	switch {
	case offset >= len(data):
		return nil
	case data[offset]&0xC0 == 0xC0:
		offset += 2
	case data[offset] == 0x20:
		offset += nbEncodedName
	default:
		return nil
	}

	// type, class, ttl, rdlength, name count
	if len(data) < offset+11 {
		return nil
	}
	if binary.BigEndian.Uint16(data[offset:]) != nbTypeNodeStatus {
		return nil
	}
	offset += 8
	end := offset + 2 + int(binary.BigEndian.Uint16(data[offset:]))
	if end > len(data) {
		end = len(data)
	}
	offset += 2
	count := int(data[offset])
	offset++

	var hosts, servers []string
	for i := 0; i < count && offset+nbNameEntrySize <= end; i++ {
		entry := data[offset : offset+nbNameEntrySize]
		offset += nbNameEntrySize

		name := strings.TrimRight(string(entry[:nbNameFieldSize]), " \x00")
		flags := binary.BigEndian.Uint16(entry[nbNameFieldSize+1:])
		if !printableName(name) || flags&nbFlagGroup != 0 || flags&nbFlagActive == 0 {
			continue
		}

		switch entry[nbNameFieldSize] {
		case nbSuffixHost:
			hosts = append(hosts, name)
		case nbSuffixServer:
			servers = append(servers, name)
		}
	}

	return orderedUnique(append(hosts, servers...))
}

// printableName rejects empty names and names carrying control or
// non-ASCII bytes, which some stacks leave in padding.
func printableName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7e {
			return false
		}
	}
	return true
}
