// Package stream runs the dictation pipeline. Each submitted chunk becomes a
// background task: decode and resample on a bounded worker pool, append to
// the segment buffer, scan for complete segments, trim, then transcribe every
// segment. Buffer work and engine calls follow submission order, so a flush
// or reset applies after every chunk submitted before it. Outcomes, including
// failures, reach the client only through the result queue.
package stream
