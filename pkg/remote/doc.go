// Package remote provides remote source implementations for the syncer
// coordinator. The HTTP source fetches JSON records from an endpoint URL
// template, with transport-level retries, optional JSON path extraction,
// and optional JSON Schema validation of the payload.
//
// The coordinator itself never retries a failed fetch; retry policy lives
// here, at the transport, where it belongs.
package remote
