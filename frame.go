package main

//---------------- OLED Packet Format ----------------

const (
	PACKET_SIZE   = 642
	PAYLOAD_SIZE  = 640
	PACKET_HEADER = 0x61
)

// packFrame serializes a canvas into the 642-byte HID report the Apex 5
// OLED expects: report ID 0x61 followed by 640 payload bytes. Pixels pack
// row-major, eight per byte, most significant bit leftmost, so the bit for
// column x lands at (7 - x%8) of payload byte (y*16 + x/8) on the 128-wide
// panel. Unused trailing bytes stay zero.
func packFrame(c *Canvas) []byte {
	packet := make([]byte, PACKET_SIZE)
	packet[0] = PACKET_HEADER
	for y := 0; y < c.H; y++ {
		for x := 0; x < c.W; x++ {
			if c.Pix[y*c.W+x] {
				packet[1+(y*c.W+x)/8] |= 1 << (7 - uint(x%8))
			}
		}
	}
	return packet
}

// blankPacket is what Halt pushes so the panel does not keep showing the
// last frame after shutdown.
func blankPacket() []byte {
	packet := make([]byte, PACKET_SIZE)
	packet[0] = PACKET_HEADER
	return packet
}
