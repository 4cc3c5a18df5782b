// Package protocol implements the binary packet format of the UDP ingest.
// Audio packets carry little-endian 16-bit PCM with its sample rate, channel
// count and capture time; control packets carry a flush or reset command.
package protocol
