package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateSecret returns an opaque credential suitable for an
// instance's SFTP password.
func GenerateSecret() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in no state to
		// hand out credentials.
		panic(err)
	}
	return hex.EncodeToString(buf)
}
