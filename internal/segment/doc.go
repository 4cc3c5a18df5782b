// Package segment turns a rolling sample buffer into complete utterances.
// A speech interval is complete once it is followed by enough silence: a
// sentence pause completes it, a longer paragraph pause also marks a
// paragraph break. Completeness of the last interval can only grow as more
// silence arrives, so a segment never flips back to pending. Flush forces
// every pending interval out at the end of a session.
//
// Every scan runs the oracle over the whole retained buffer. This costs
// O(buffer) per chunk, bounded by the buffer cap, and lets the oracle see
// pauses that straddle chunk boundaries.
package segment
