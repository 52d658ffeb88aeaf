package arcade

import "math/bits"

// mulBps returns floor(amount * bps / BpsDenominator) without overflow.
// bps must not exceed BpsDenominator.
func mulBps(amount, bps uint64) uint64 {
	hi, lo := bits.Mul64(amount, bps)
	q, _ := bits.Div64(hi, lo, BpsDenominator)
	return q
}

func addChecked(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// scaleStat converts an exact amount to the truncated stats unit.
func scaleStat(amount, unit uint64) uint64 {
	return amount / unit
}

func incSat32(v uint32) uint32 {
	if v == ^uint32(0) {
		return v
	}
	return v + 1
}

func addSat(a, b uint64) uint64 {
	if sum, ok := addChecked(a, b); ok {
		return sum
	}
	return ^uint64(0)
}
