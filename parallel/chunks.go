package parallel

import "math"

// NumChunks computes the number of chunks per wavelength spec.md §5
// specifies: comfortably exceeding the thread count for load balancing,
// approximately max(10·threads/Nlambda, N_packets/1e7), with a floor of 1
// chunk and a ceiling of N_packets/2e4 so progress messages stay useful
// (grounded on MonteCarloSimulation::setupSelfAfter's
// "ceil(qMin(packages/2e4, qMax(packages/1e7, 10.*Nthreads/Nlambda)))").
func NumChunks(packets float64, threads, nLambda int) int {
	if packets <= 0 {
		return 0
	}
	if threads <= 1 {
		return 1
	}
	floor := 10 * float64(threads) / float64(nLambda)
	target := math.Max(packets/1e7, floor)
	ceiling := packets / 2e4
	n := math.Min(target, ceiling)
	if n < 1 {
		n = 1
	}
	return int(math.Ceil(n))
}

// ChunkSize returns ceil(packets/chunks), the per-chunk packet count.
func ChunkSize(packets float64, chunks int) int {
	if chunks <= 0 {
		return 0
	}
	return int(math.Ceil(packets / float64(chunks)))
}
