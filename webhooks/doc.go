// Package webhooks is the HTTP entry point for inbound SMS callbacks.
//
// A request runs through an explicit list of stages:
// RequirePOST -> RequireJSON -> DecodeJSON -> VerifySignature ->
// ParseMessage -> Reassemble. Each stage either passes the exchange on,
// answers the request itself, or fails with a go-errors envelope that is
// translated into a status code. Only a complete message reaches the
// application handler.
package webhooks
