package wire

import "testing"

func buildKeepalive() []byte {
	msg := make([]byte, HeaderSize)
	for i := 0; i < MarkerSize; i++ {
		msg[i] = 0xFF
	}
	msg[16] = 0
	msg[17] = HeaderSize
	msg[18] = MsgTypeKeepalive
	return msg
}

func TestMarkerCheck(t *testing.T) {
	msg := buildKeepalive()
	if !MarkerCheck(msg) {
		t.Fatalf("expected marker to check out")
	}
	msg[3] = 0x00
	if MarkerCheck(msg) {
		t.Fatalf("expected corrupted marker to fail")
	}
}

func TestFramesSingleMessage(t *testing.T) {
	msg := buildKeepalive()
	frames, residual := Frames(msg)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Type != MsgTypeKeepalive {
		t.Fatalf("expected keepalive type, got %d", frames[0].Type)
	}
	if residual != 0 {
		t.Fatalf("expected no residual, got %d", residual)
	}
}

func TestFramesConcatenationProperty(t *testing.T) {
	a := buildKeepalive()
	b := buildKeepalive()
	ab := append(append([]byte{}, a...), b...)

	framesA, _ := Frames(a)
	framesB, _ := Frames(b)
	framesAB, residualAB := Frames(ab)

	if len(framesAB) != len(framesA)+len(framesB) {
		t.Fatalf("expected frame_iter(a++b) == frame_iter(a)++frame_iter(b) in length, got %d vs %d", len(framesAB), len(framesA)+len(framesB))
	}
	if residualAB != 0 {
		t.Fatalf("expected zero residual on boundary-aligned concatenation, got %d", residualAB)
	}
}

func TestFramesIncompleteTrailer(t *testing.T) {
	msg := buildKeepalive()
	partial := append(msg, msg[:10]...)

	frames, residual := Frames(partial)
	if len(frames) != 1 {
		t.Fatalf("expected 1 complete frame, got %d", len(frames))
	}
	if residual != 10 {
		t.Fatalf("expected residual of 10 incomplete bytes, got %d", residual)
	}
}

func TestTryFrameWantsMoreData(t *testing.T) {
	msg := buildKeepalive()
	short := msg[:10]
	hdr, consumed, err := TryFrame(short)
	if err != nil {
		t.Fatalf("unexpected error on short buffer: %v", err)
	}
	if consumed != 0 || hdr.Length != 0 {
		t.Fatalf("expected zero consumption while waiting for more data")
	}
}

func TestTryFrameRejectsBadMarker(t *testing.T) {
	msg := buildKeepalive()
	msg[0] = 0x00
	_, _, err := TryFrame(msg)
	if err == nil {
		t.Fatalf("expected error for bad marker")
	}
}
