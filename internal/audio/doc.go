// Package audio holds the rolling segment buffer and the sample conversions
// around it: WAV decode and encode, PCM16 conversion, channel downmix and
// resampling to the buffer rate.
//
// Buffer indices are only meaningful against the snapshot they came from.
// Consume translates them through the buffer generation so that audio
// appended or evicted after the snapshot is never dropped by mistake.
package audio
