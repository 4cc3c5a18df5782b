// Package results holds transcription outcomes until a client polls for them.
// A record is either a Transcription or a Failure. Queue order is completion
// order, so consumers should sort by capture time when they need chronology.
package results
