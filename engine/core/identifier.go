package core

import (
	"fmt"

	"github.com/google/uuid"
)

// NewLabel returns a unique, human readable label such as
// "cmdbuf-1b4e28ba". Labels only show up in logs and debug markers.
func NewLabel(prefix string) string {
	id := uuid.New()
	return fmt.Sprintf("%s-%s", prefix, id.String()[:8])
}
