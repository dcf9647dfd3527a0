// Package timeouts defines shared timeout constants used across the
// engagement services. Centralizing these values prevents drift between
// service boundaries and makes the durations discoverable.
package timeouts

import "time"

// ChannelSend caps the time allowed for one push or email transport attempt.
const ChannelSend = 5 * time.Second

// Shutdown limits how long the delivery worker waits for an in-flight
// batch during graceful shutdown.
const Shutdown = 5 * time.Second
