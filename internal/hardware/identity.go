package hardware

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"robot-service/internal/identity"
)

// MachineID reads the unit identity from a machine-id style file: 32 hex
// digits, the same 128 bits as a UUID.
type MachineID struct {
	Path string
}

func (m MachineID) ReadIdentity() (identity.ID, error) {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return identity.ID{}, fmt.Errorf("failed to read %s: %w", m.Path, err)
	}
	return parseIdentity(strings.TrimSpace(string(data)))
}

func parseIdentity(s string) (identity.ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return identity.ID{}, fmt.Errorf("invalid identity %q: %w", s, err)
	}
	return identity.ID(u), nil
}
