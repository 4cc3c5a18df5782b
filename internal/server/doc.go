// Package server exposes the dictation pipeline over the network. HTTPServer
// serves the chunk submission and result polling API together with health,
// statistics and Prometheus endpoints. UDPServer accepts raw PCM and control
// packets and feeds them through a worker pool into the same dispatcher.
package server
