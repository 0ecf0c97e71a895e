package main

import (
	"bytes"
	"testing"
)

// unpackFrame reverses packFrame for round-trip checks.
func unpackFrame(packet []byte, w, h int) *Canvas {
	c := NewCanvas(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if packet[1+idx/8]>>(7-uint(x%8))&1 == 1 {
				c.Pix[idx] = true
			}
		}
	}
	return c
}

func TestPackFrameShape(t *testing.T) {
	c := NewCanvas(OLED_WIDTH, OLED_HEIGHT)
	packet := packFrame(c)

	if len(packet) != PACKET_SIZE {
		t.Fatalf("len(packFrame()) = %d; want %d", len(packet), PACKET_SIZE)
	}
	if packet[0] != PACKET_HEADER {
		t.Errorf("packet[0] = 0x%02X; want 0x%02X", packet[0], PACKET_HEADER)
	}
	for i := 1; i < PACKET_SIZE; i++ {
		if packet[i] != 0 {
			t.Fatalf("empty canvas set packet[%d] = 0x%02X; want 0", i, packet[i])
		}
	}
}

func TestPackFrameBitPositions(t *testing.T) {
	tests := []struct {
		x, y    int
		byteIdx int
		bit     uint
	}{
		{0, 0, 1, 7},    // top-left is the MSB of the first payload byte
		{7, 0, 1, 0},    // end of the first byte
		{8, 0, 2, 7},    // rolls into the next byte
		{127, 0, 16, 0}, // top-right
		{0, 1, 17, 7},   // each row is a 16 byte stride
		{64, 20, 1 + (20*128+64)/8, 7},
		{127, 39, 640, 0}, // bottom-right
	}

	for _, tt := range tests {
		c := NewCanvas(OLED_WIDTH, OLED_HEIGHT)
		c.SetPixel(tt.x, tt.y, true)
		packet := packFrame(c)

		want := byte(1) << tt.bit
		if packet[tt.byteIdx] != want {
			t.Errorf("pixel (%d,%d): packet[%d] = 0x%02X; want 0x%02X",
				tt.x, tt.y, tt.byteIdx, packet[tt.byteIdx], want)
		}

		ones := 0
		for _, b := range packet[1:] {
			for ; b > 0; b &= b - 1 {
				ones++
			}
		}
		if ones != 1 {
			t.Errorf("pixel (%d,%d): %d payload bits set; want exactly 1", tt.x, tt.y, ones)
		}
	}
}

func TestPackFrameRoundTrip(t *testing.T) {
	c := NewCanvas(OLED_WIDTH, OLED_HEIGHT)
	for y := 0; y < c.H; y++ {
		for x := 0; x < c.W; x++ {
			c.SetPixel(x, y, (x*7+y*13)%5 == 0)
		}
	}

	got := unpackFrame(packFrame(c), c.W, c.H)
	for i := range c.Pix {
		if got.Pix[i] != c.Pix[i] {
			t.Fatalf("pixel %d = %t after round trip; want %t", i, got.Pix[i], c.Pix[i])
		}
	}
}

func TestPackFrameTrailingByteStaysZero(t *testing.T) {
	c := NewCanvas(OLED_WIDTH, OLED_HEIGHT)
	c.Clear(true)
	packet := packFrame(c)

	for i := 1; i <= PAYLOAD_SIZE; i++ {
		if packet[i] != 0xFF {
			t.Fatalf("packet[%d] = 0x%02X for a fully lit canvas; want 0xFF", i, packet[i])
		}
	}
	if packet[PACKET_SIZE-1] != 0 {
		t.Errorf("packet[%d] = 0x%02X; want the trailing byte zero", PACKET_SIZE-1, packet[PACKET_SIZE-1])
	}
}

func TestBlankPacket(t *testing.T) {
	packet := blankPacket()
	if len(packet) != PACKET_SIZE || packet[0] != PACKET_HEADER {
		t.Fatalf("blankPacket() len %d first byte 0x%02X; want %d and 0x%02X",
			len(packet), packet[0], PACKET_SIZE, PACKET_HEADER)
	}
	if !bytes.Equal(packet[1:], make([]byte, PACKET_SIZE-1)) {
		t.Errorf("blankPacket() has payload bits set")
	}
}
