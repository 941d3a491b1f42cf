package scan

import (
	"encoding/binary"
	"testing"
)

type nbName struct {
	name   string
	suffix byte
	flags  uint16
}

func buildNodeStatusResponse(names []nbName) []byte {
	packet := []byte{0x82, 0x28, 0x84, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
	packet = append(packet, nbNodeStatusQuery[12:12+nbEncodedName]...)
	packet = append(packet, 0x00, 0x21, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00)

	rdata := []byte{byte(len(names))}
	for _, n := range names {
		field := make([]byte, nbNameEntrySize)
		copy(field, []byte(n.name))
		for i := len(n.name); i < nbNameFieldSize; i++ {
			field[i] = ' '
		}
		field[nbNameFieldSize] = n.suffix
		binary.BigEndian.PutUint16(field[nbNameFieldSize+1:], n.flags)
		rdata = append(rdata, field...)
	}
	rdata = append(rdata, make([]byte, 46)...) // statistics

	length := make([]byte, 2)
	binary.BigEndian.PutUint16(length, uint16(len(rdata)))
	packet = append(packet, length...)
	return append(packet, rdata...)
}

func TestParseNetBIOSResponse(t *testing.T) {
	packet := buildNodeStatusResponse([]nbName{
		{"WORKGROUP", 0x00, nbFlagGroup | nbFlagActive},
		{"FILESERVER", 0x20, nbFlagActive},
		{"DESKTOP-7", 0x00, nbFlagActive},
		{"STALE", 0x00, 0},
		{"DESKTOP-7", 0x03, nbFlagActive},
	})

	names := parseNetBIOSResponse(packet)
	want := []string{"DESKTOP-7", "FILESERVER"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestParseNetBIOSResponseRejectsMalformed(t *testing.T) {
	full := buildNodeStatusResponse([]nbName{{"HOST", 0x00, nbFlagActive}})

	tests := map[string][]byte{
		"empty":     nil,
		"short":     full[:20],
		"query bit": append([]byte{0x82, 0x28, 0x00}, full[3:]...),
		"truncated": full[:nbHeaderSize+nbEncodedName+5],
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if got := parseNetBIOSResponse(data); len(got) != 0 {
				t.Fatalf("expected no names, got %v", got)
			}
		})
	}
}
