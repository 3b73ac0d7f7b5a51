package qspi

// bitAssembler builds a byte out of line width sized bit groups, most
// significant group first.
type bitAssembler struct {
	value uint8
	// count of bits accumulated so far. Always a multiple of the width in
	// use and below 8 between clock edges.
	count uint8
	// start is the sample of the first bit of the byte in progress.
	start int64
}

// empty reports whether no bit of a new byte has been received.
func (ba *bitAssembler) empty() bool { return ba.count == 0 }

// shift folds the bits of one clock edge into the byte. It reports true
// when the byte is complete; the caller consumes value and calls clear.
func (ba *bitAssembler) shift(sample int64, width uint8, lv *Levels) (complete bool) {
	if ba.count == 0 {
		ba.start = sample
	}
	ba.value = ba.value<<width | lineBits(width, lv)
	ba.count += width
	return ba.count >= 8
}

func (ba *bitAssembler) clear() {
	ba.value = 0
	ba.count = 0
}

// lineBits returns the bit group on the data lines for width.
//
// With one line the result is IO0 XOR IO1: in single line phases only one
// of MOSI and MISO is driven and the other idles low, so the XOR yields
// the driven bit without knowing which side is talking.
//
//go:inline
func lineBits(width uint8, lv *Levels) uint8 {
	io0 := lv[LineIO0].Bit()
	io1 := lv[LineIO1].Bit()
	switch width {
	case 4:
		return lv[LineIO3].Bit()<<3 | lv[LineIO2].Bit()<<2 | io1<<1 | io0
	case 2:
		return io1<<1 | io0
	}
	return io0 ^ io1
}
