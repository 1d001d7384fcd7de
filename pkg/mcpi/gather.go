package mcpi

import "math/bits"

// Gather combines per-job inside counts and sample counts into an estimate
// of pi. Counts are accumulated as integers and divided once at the end.
func Gather(inside, samples []uint64) (float64, error) {
	if len(inside) == 0 || len(samples) == 0 {
		return 0, invalidf("gather needs at least one job")
	}
	if len(inside) != len(samples) {
		return 0, invalidf("gather got %d inside counts for %d sample counts", len(inside), len(samples))
	}
	var nInside, nTotal, carry uint64
	for i := range inside {
		if inside[i] > samples[i] {
			return 0, invalidf("job %d: inside count %d exceeds sample count %d", i, inside[i], samples[i])
		}
		nInside += inside[i]
		nTotal, carry = bits.Add64(nTotal, samples[i], 0)
		if carry != 0 {
			return 0, invalidf("total sample count overflows 64 bits")
		}
	}
	if nTotal == 0 {
		return 0, invalidf("no samples were drawn")
	}
	return 4 * (float64(nInside) / float64(nTotal)), nil
}

// GatherResults is Gather over job results.
func GatherResults(results []Result) (float64, error) {
	inside := make([]uint64, len(results))
	samples := make([]uint64, len(results))
	for i, r := range results {
		inside[i] = r.Inside
		samples[i] = r.Samples
	}
	return Gather(inside, samples)
}
