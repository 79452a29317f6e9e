// Package nexmo implements the Nexmo (Vonage) SMS API pieces the webhook
// needs: inbound signature verification and a client that can reply to the
// sender.
package nexmo
