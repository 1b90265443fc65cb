// Package pipeline implements the pure stages of a poll cycle: routing
// labels onto live boards, scanning catalogs, aggregating matches per label
// and webhook, and diffing current links against the delivered-link cache.
//
// Every stage takes its inputs as parameters and returns fresh values; none
// of them touch the network or the cache store, so they can be exercised in
// isolation. Map iteration is always done over sorted keys so repeated runs
// over the same input produce identical output.
package pipeline
