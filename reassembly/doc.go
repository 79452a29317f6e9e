// Package reassembly merges concatenated SMS fragments into one logical
// message.
//
// The engine keeps no per-group state. Every decision is taken from what the
// part store reports, so any number of processes may run it against the same
// store. Completion is gated twice: the store rejects a second insert of the
// same (ref, index), and only the caller whose DeleteGroup removed the whole
// group delivers.
package reassembly
