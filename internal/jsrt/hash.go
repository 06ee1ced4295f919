package jsrt

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainWorklet prefixes worklet source hashes.
// Version suffix enables future algorithm migration.
const DomainWorklet = "worklets/worklet/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// WorkletHash returns the content hash assigned to worklet source. Identical
// sources share a hash regardless of where they were authored.
func WorkletHash(source string) string {
	return hashWithDomain(DomainWorklet, []byte(source))[:16]
}
