// Package transport executes outbound HTTP calls to the SMS provider API.
package transport
