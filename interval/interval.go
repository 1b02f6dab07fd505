// Package interval implements the extended-interval algebra that backs the
// damage coalescer: pure value operations on (start, width, stride, rep)
// quadruples representing the union of rep equal-width blocks spaced stride
// apart.
//
// Every interval here is a value type; none of these functions retain a
// reference to their arguments, so callers are free to reuse backing arrays.
package interval

// Ext is a run-length description of rep equal-width byte ranges
// [start+k*stride, start+k*stride+width) for k in [0, rep).
//
// Invariants: Width >= 0, Rep >= 1. If Rep == 1 then Stride == 0. A
// "sparse" interval (Rep > 1, Stride >= Width) whose internal gap
// (Stride-Width) is smaller than the merge margin must be smoothed via
// SmoothGaps before it is considered canonical.
type Ext struct {
	Start  int32
	Width  int32
	Stride int32
	Rep    int32
}

// Low returns the canonical low (inclusive) end.
func (e Ext) Low() int32 { return e.Start }

// High returns the canonical high (exclusive) end.
func (e Ext) High() int32 { return e.Start + (e.Rep-1)*e.Stride + e.Width }

// Area returns the number of bytes covered, counting overlaps once per
// repetition (i.e. rep*width, not the true union size).
func (e Ext) Area() int64 { return int64(e.Rep) * int64(e.Width) }

func minI32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func maxI32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

// ceilDiv implements the C reference's integer ceildiv, which must behave
// correctly for negative numerators (the margin arithmetic routinely
// produces them).
func ceilDiv(a, b int32) int32 {
	if b <= 0 {
		panic("interval: ceilDiv by non-positive divisor")
	}
	if a >= 0 {
		return (a + b - 1) / b
	}
	return -((-a) / b)
}

// Containing returns the minimal solid interval (Rep=1, Stride=0) whose
// range covers both a and b.
func Containing(a, b Ext) Ext {
	lo := minI32(a.Low(), b.Low())
	hi := maxI32(a.High(), b.High())
	return Ext{Start: lo, Width: hi - lo, Rep: 1, Stride: 0}
}

// SmoothGaps collapses a sparse interval whose internal gap is smaller than
// margin into a single solid interval, and canonicalizes the stride of any
// Rep==1 interval to zero.
func SmoothGaps(e Ext, margin int32) Ext {
	if e.Width > e.Stride-margin {
		e.Width = e.Stride*(e.Rep-1) + e.Width
		e.Rep = 1
	}
	if e.Rep == 1 {
		e.Stride = 0
	}
	return e
}

func dropHead(a Ext, repsLeft int32) Ext {
	stride := int32(0)
	if repsLeft > 1 {
		stride = a.Stride
	}
	return Ext{
		Start:  a.Start + a.Stride*(a.Rep-repsLeft),
		Width:  a.Width,
		Rep:    repsLeft,
		Stride: stride,
	}
}

func dropTail(a Ext, repsLeft int32) Ext {
	stride := int32(0)
	if repsLeft > 1 {
		stride = a.Stride
	}
	return Ext{Start: a.Start, Width: a.Width, Rep: repsLeft, Stride: stride}
}

func dropEnds(a Ext, cutLeft, cutRight int32) Ext {
	repsLeft := a.Rep - cutLeft - cutRight
	stride := int32(0)
	if repsLeft > 1 {
		stride = a.Stride
	}
	return Ext{
		Start:  a.Start + a.Stride*cutLeft,
		Width:  a.Width,
		Rep:    repsLeft,
		Stride: stride,
	}
}

// mergeFCAligned returns the minimal interval of stride commonStride
// covering both a and b, with start%commonStride matching a.
func mergeFCAligned(a, b Ext, commonStride, margin int32) Ext {
	modA := a.Start % commonStride
	modB := b.Start % commonStride
	width := modB + b.Width - modA
	if modA > modB {
		width += commonStride
	}
	width = maxI32(width, maxI32(a.Width, b.Width))
	if width >= commonStride-margin {
		return Containing(a, b)
	}

	bHigh := b.High()
	preShift := ceilDiv(maxI32(a.Start-b.Start, 0), commonStride)
	postShift := ceilDiv(maxI32(0, bHigh-a.Start-a.Width), commonStride)

	nreps := preShift + maxI32(a.Rep, postShift)
	stride := int32(0)
	if nreps > 1 {
		stride = commonStride
	}
	return Ext{
		Start:  a.Start - commonStride*preShift,
		Width:  width,
		Rep:    nreps,
		Stride: stride,
	}
}

// mergeFullyConsumed produces a single interval covering a union b with all
// internal gaps <= margin.
func mergeFullyConsumed(a, b Ext, margin int32) Ext {
	if (a.Rep > 1 && b.Rep > 1 && a.Stride != b.Stride) || (a.Rep == 1 && b.Rep == 1) {
		return Containing(a, b)
	}
	stride := a.Stride
	if a.Rep == 1 {
		stride = b.Stride
	}

	aAligned := mergeFCAligned(a, b, stride, margin)
	bAligned := mergeFCAligned(b, a, stride, margin)

	if aAligned.Area() < bAligned.Area() {
		return aAligned
	}
	return bAligned
}

// mergeContained merges inner into outer, which fully contains it. It
// returns 0 to 3 disjoint products.
func mergeContained(outer, inner Ext, margin int32) []Ext {
	if outer.Stride == 0 || outer.Rep == 1 {
		return []Ext{outer}
	}

	var nlower, nupper int32
	lowCutoff := inner.Low() - margin
	nlower = ceilDiv(lowCutoff-outer.Start-outer.Width, outer.Stride)
	highCutoff := inner.High() + margin + 1
	nupper = outer.Rep - ceilDiv(highCutoff-outer.Start, outer.Stride)

	if nlower+nupper == outer.Rep {
		return nil
	}

	out := make([]Ext, 0, 3)
	couter := dropEnds(outer, nlower, nupper)
	merged := mergeFullyConsumed(inner, couter, margin)
	out = append(out, merged)

	lowCutoff = merged.Low() - margin
	highCutoff = merged.High() + margin + 1
	nlower = ceilDiv(lowCutoff-outer.Start-outer.Width, outer.Stride)
	nupper = outer.Rep - ceilDiv(highCutoff-outer.Start, outer.Stride)

	if nlower > 0 {
		out = append(out, dropTail(outer, nlower))
	}
	if nupper > 0 {
		out = append(out, dropHead(outer, nupper))
	}
	return out
}

// mergeAsymmetric merges two intervals neither of which contains the other,
// with lower.Low() <= upper.Low().
func mergeAsymmetric(lower, upper Ext, margin int32) []Ext {
	if lower.High() < upper.Low()-margin {
		return nil
	}

	var nlower, nupper int32
	if lower.Rep > 1 {
		cutoff := upper.Low() - margin
		nlower = ceilDiv(cutoff-lower.Start-lower.Width, lower.Stride)
	}
	if upper.Rep > 1 {
		cutoff := lower.High() + margin + 1
		nupper = upper.Rep - ceilDiv(cutoff-upper.Start, upper.Stride)
	}

	out := make([]Ext, 0, 3)
	clower := dropHead(lower, lower.Rep-nlower)
	cupper := dropTail(upper, upper.Rep-nupper)
	merged := mergeFullyConsumed(clower, cupper, margin)
	out = append(out, merged)

	if lower.Rep > 1 {
		lowCutoff := merged.Low() - margin
		nlower = ceilDiv(lowCutoff-lower.Start-lower.Width, lower.Stride)
		if nlower > 0 {
			out = append(out, dropTail(lower, nlower))
		}
	}
	if upper.Rep > 1 {
		highCutoff := merged.High() + margin + 1
		nupper = upper.Rep - ceilDiv(highCutoff-upper.Start, upper.Stride)
		if nupper > 0 {
			out = append(out, dropHead(upper, nupper))
		}
	}
	return out
}

// Merge combines a and b under the given merge margin, returning 0 to 3
// disjoint intervals whose union covers cover(a) ∪ cover(b) and whose
// pairwise gaps all exceed margin. A nil/empty result means a and b are
// disjoint by more than margin and should be kept as separate entries by
// the caller.
func Merge(a, b Ext, margin int32) []Ext {
	// The case analysis below assumes canonical inputs; smoothing is a
	// no-op for intervals that already are.
	a, b = SmoothGaps(a, margin), SmoothGaps(b, margin)
	aLow, aHigh := a.Low(), a.High()
	bLow, bHigh := b.Low(), b.High()

	if a.Stride == b.Stride && (a.Rep > 1 || b.Rep > 1) {
		commonStride := b.Stride
		if a.Rep > 1 {
			commonStride = a.Stride
		}
		modA := a.Start % commonStride
		modB := b.Start % commonStride

		if a.Width == b.Width && modA == modB {
			if a.Start+a.Rep*a.Stride == b.Start {
				return []Ext{{Start: a.Start, Width: a.Width, Stride: commonStride, Rep: a.Rep + b.Rep}}
			}
			if b.Start+b.Rep*b.Stride == a.Start {
				return []Ext{{Start: b.Start, Width: b.Width, Stride: commonStride, Rep: a.Rep + b.Rep}}
			}
		}

		if modA > modB {
			modB += commonStride
		}
		gapAB := modB - (modA + a.Width)
		if modB > modA {
			modA += commonStride
		}
		gapBA := modA - (modB + b.Width)
		if gapAB > margin && gapBA > margin {
			return nil
		}
	}

	switch {
	case aLow >= bLow && aHigh <= bHigh:
		return mergeContained(b, a, margin)
	case bLow >= aLow && bHigh <= aHigh:
		return mergeContained(a, b, margin)
	case aLow <= bLow:
		return mergeAsymmetric(a, b, margin)
	default:
		return mergeAsymmetric(b, a, margin)
	}
}
