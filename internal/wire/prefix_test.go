package wire

import "testing"

func TestDecodePrefixesIPv4(t *testing.T) {
	// 10.0.0.0/8, 192.168.1.0/24
	data := []byte{8, 10, 24, 192, 168, 1}
	prefixes, err := DecodePrefixes(data, FamilyIPv4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prefixes) != 2 {
		t.Fatalf("expected 2 prefixes, got %d", len(prefixes))
	}
	if prefixes[0].String() != "10.0.0.0/8" {
		t.Fatalf("unexpected prefix: %s", prefixes[0].String())
	}
	if prefixes[1].String() != "192.168.1.0/24" {
		t.Fatalf("unexpected prefix: %s", prefixes[1].String())
	}
}

func TestDecodePrefixesOversizedLength(t *testing.T) {
	data := []byte{33, 10, 0, 0, 0}
	_, err := DecodePrefixes(data, FamilyIPv4)
	if err == nil {
		t.Fatalf("expected error for prefix length exceeding IPv4 maximum")
	}
}

func TestDecodePrefixesTruncated(t *testing.T) {
	data := []byte{24, 10, 0}
	_, err := DecodePrefixes(data, FamilyIPv4)
	if err == nil {
		t.Fatalf("expected error for truncated prefix data")
	}
}

func TestDecodePrefixesZeroesTrailingBits(t *testing.T) {
	// /10 needs 2 bytes; wire sends garbage in the unused low 6 bits.
	data := []byte{10, 0xFF, 0xFF}
	prefixes, err := DecodePrefixes(data, FamilyIPv4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prefixes[0].Bytes[1] != 0xC0 {
		t.Fatalf("expected trailing bits zeroed, got %08b", prefixes[0].Bytes[1])
	}
}

func TestEncodePrefixRoundtrip(t *testing.T) {
	p := Prefix{Family: FamilyIPv4, Bits: 24, Bytes: []byte{10, 0, 0}}
	enc := EncodePrefix(p)
	decoded, err := DecodePrefixes(enc, FamilyIPv4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decoded[0].Equal(p) {
		t.Fatalf("roundtrip mismatch: got %+v", decoded[0])
	}
}
