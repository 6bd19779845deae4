// Package protocol implements the device verification protocol core:
// the event model shared by the two wire transports, the transaction
// registry, and the orchestrator that drives each verification
// transaction from the initial request through trust finalization.
//
// The encrypted-messaging client that owns transport, sessions and the
// SAS cryptography is external to this module; protocol reaches it only
// through the Verifier capability interface.
package protocol
