// Package timerange provides date intervals and chunk planning for exports.
//
// An export covers an inclusive date interval. The remote export API rejects
// very wide ranges and rate-limits aggressively, so intervals are split into
// bounded chunks that are fetched independently:
//
//	iv, _ := timerange.NewInterval(from, to)
//	chunks, _ := timerange.Split(iv, 7)
//
// Split is pure and deterministic: the chunks are contiguous, non-overlapping,
// and re-merged in index order reconstruct the input interval exactly. It is
// safe to call repeatedly for planning and estimation.
package timerange
