// Package core contains the inbound SMS domain: the message model, the
// payload parser, the part store and delivery ledger contracts, runtime
// configuration and the error envelope shared by every other package.
//
// Lower-level adapters (SQL stores, HTTP entry point, provider clients)
// depend on this package; core never depends on them.
package core
