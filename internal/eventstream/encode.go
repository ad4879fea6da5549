package eventstream

// AppendRecord appends the shortest encoding of one record to dst. Only the
// low 9 bits of x and the low 8 bits of y are representable.
func AppendRecord(dst []byte, x, y, dt uint32) []byte {
	dst = append(dst, byte(x), byte((x>>8)&1)|byte(y&0x7F)<<1)

	y7 := byte(y>>7) & 1
	if dt < 0x80 {
		if c := y7 | byte(dt)<<1; c&continueMask != continueMask {
			return append(dst, c)
		}
	}
	dst = append(dst, continueMask|y7|byte(dt&0x1F)<<1)

	rest := dt >> 5
	for i := 3; i < maxRecordLen-1; i++ {
		if rest < 0x100 && byte(rest)&continueMask != continueMask {
			return append(dst, byte(rest))
		}
		dst = append(dst, continueMask|byte(rest&payloadMask))
		rest >>= 6
	}
	// 29 bits are placed by now, so rest fits in three bits.
	return append(dst, byte(rest))
}

// AppendFrameMarker appends the frame boundary sentinel.
func AppendFrameMarker(dst []byte) []byte {
	return AppendRecord(dst, 0, 0, frameMarkerDT)
}
