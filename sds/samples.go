package sds

// WordSize returns the number of 7-bit bytes used to transmit one sample of
// the given bit depth.
func WordSize(bitDepth int) int {
	checkBitDepth(bitDepth)
	return (bitDepth + 6) / 7
}

func checkBitDepth(bitDepth int) {
	switch {
	case bitDepth < MinBitDepth:
		panic("bit depth < 8 is not supported")
	case bitDepth > MaxBitDepth:
		panic("bit depth > 28 is not supported")
	}
}

// PackSamples appends the SDS encoding of signed samples to buf.
//
// Each sample is offset to unsigned, left-justified within its word and
// emitted most significant 7 bits first. Unused low bits are zero.
func PackSamples(buf []byte, samples []int, bitDepth int) []byte {
	var (
		size  = WordSize(bitDepth)
		shift = uint(7*size - bitDepth)
		zero  = uint(1) << (bitDepth - 1)
		mask  = uint(1)<<bitDepth - 1
	)
	for _, s := range samples {
		v := ((uint(s) + zero) & mask) << shift
		for i := size - 1; i >= 0; i-- {
			buf = append(buf, byte(v>>(7*uint(i)))&0x7F)
		}
	}
	return buf
}

// UnpackSamples decodes sample words in data and appends them to out.
// A trailing incomplete word is ignored.
func UnpackSamples(out []int, data []byte, bitDepth int) []int {
	var (
		size  = WordSize(bitDepth)
		shift = uint(7*size - bitDepth)
		zero  = uint(1) << (bitDepth - 1)
	)
	for i := 0; i+size <= len(data); i += size {
		var v uint
		for _, b := range data[i : i+size] {
			v = v<<7 | uint(b&0x7F)
		}
		out = append(out, int(v>>shift)-int(zero))
	}
	return out
}
