// Package credential resolves credential references for task inputs.
//
// Values are stored sealed with ChaCha20-Poly1305, bound to their owner and
// id. Every lookup is reported to an Auditor with its outcome and a keyed
// BLAKE2b fingerprint of the value, never the value itself.
package credential
