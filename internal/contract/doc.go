// Package contract loads the data contract that maps source columns to
// asset attributes.
//
// A contract is written in CUE and unified with an embedded schema before
// use. It names the identifier column and the ordered list of attribute
// columns; that order is the attribute order of every record and payload.
// The embedded default contract is used when no file is configured.
package contract
