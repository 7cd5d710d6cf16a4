// Package message holds the wire-level vocabulary shared by publishers and
// subscribers: writer identities, request/reply envelope headers, per-sample
// delivery metadata, and the pluggable payload codec.
package message
