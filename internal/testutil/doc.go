// Package testutil provides deterministic stand-ins for the clock-bound and
// network-bound parts of a run: a sleeper that records delays instead of
// waiting, a fixed run id generator, and a scripted remote service.
package testutil
