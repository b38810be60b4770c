// Package webhooks implements the outbound delivery primitives of the
// directory-sync pipeline: the BoxyHQ-Signature HMAC scheme, the signed
// HTTP sender and the exponential retry policy used to schedule failed
// deliveries.
package webhooks
