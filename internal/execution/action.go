package execution

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

func NewActionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "run-unknown"
	}
	return fmt.Sprintf("run_%s", hex.EncodeToString(b))
}
