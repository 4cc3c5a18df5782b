// Package transcription defines the speech to text Engine contract and its
// HTTP implementation. Client posts each segment as a 16-bit WAV file to a
// whisper-server compatible endpoint, retrying server errors and network
// failures with exponential backoff. The native whisper.cpp engine lives in
// the whisper subpackage.
package transcription
