// Package identity derives deterministic record identifiers from seed strings.
package identity

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

// FromSeed hashes seed with SHA-256 and shapes the first 16 bytes like a
// version-5 RFC 4122 UUID.
func FromSeed(seed string) uuid.UUID {
	sum := sha256.Sum256([]byte(seed))

	var id uuid.UUID
	copy(id[:], sum[:16])
	id[6] = (id[6] & 0x0f) | 0x50
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}

// EmailSeed builds the seed for an email record. An absent Message-ID is
// passed as the empty string.
func EmailSeed(batchID, sourcePath, messageID string, index int) string {
	return fmt.Sprintf("pst:%s|src:%s|mid:%s|idx:%d", batchID, sourcePath, messageID, index)
}

// AttachmentSeed builds the seed for an attachment record.
func AttachmentSeed(batchID, emailID, hash, filename string, index int) string {
	return fmt.Sprintf("pst:%s|email:%s|hash:%s|name:%s|idx:%d", batchID, emailID, hash, filename, index)
}

func EmailID(batchID, sourcePath, messageID string, index int) string {
	return FromSeed(EmailSeed(batchID, sourcePath, messageID, index)).String()
}

func AttachmentID(batchID, emailID, hash, filename string, index int) string {
	return FromSeed(AttachmentSeed(batchID, emailID, hash, filename, index)).String()
}
