// Package vad finds speech in a buffer of mono float samples.
// Oracle is the contract the segmenter depends on: given samples and options
// it returns ordered, disjoint speech intervals. Processor is the built in
// energy based implementation with speech/silence hysteresis.
package vad
