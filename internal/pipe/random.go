package pipe

import (
	"crypto/rand"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errkind.Wrap(errkind.IO, "generate random bytes", err)
	}
	return b, nil
}
