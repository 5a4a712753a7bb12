package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/vitaliisemenov/chainboot/internal/errkind"
)

// MaxVerifyTryAgainAttempts is the recommended retry ceiling on verify
// failure (BURN_CACHE_MAX_RECOMMENDED_VERIFY_TRYAGAIN_ATTEMPTS) before the
// UX is asked what to do next.
const MaxVerifyTryAgainAttempts = 2

// verify checks path against ref's verification metadata: a SHA-256
// payload hash when present, otherwise a catalog-based signature check,
// otherwise a size match.
func (s *Store) verify(ref PayloadRef, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errkind.Wrap(errkind.IO, fmt.Sprintf("stat staged payload %s", ref.Key), err)
	}

	if ref.Hash != "" {
		cacheKey := ref.Key + ":" + path
		if cached, ok := s.verified.Get(cacheKey); ok && cached == ref.Hash {
			return nil
		}

		actual, err := hashFile(path)
		if err != nil {
			return errkind.Wrap(errkind.IO, fmt.Sprintf("hash staged payload %s", ref.Key), err)
		}
		if actual != ref.Hash {
			return errkind.New(errkind.IO, fmt.Sprintf("payload %s hash mismatch: want %s got %s", ref.Key, ref.Hash, actual))
		}
		s.verified.Add(cacheKey, actual)
		return nil
	}

	if ref.CatalogFile != "" {
		if err := verifyCatalog(path, ref.CatalogFile); err != nil {
			return errkind.Wrap(errkind.IO, fmt.Sprintf("catalog verification failed for payload %s", ref.Key), err)
		}
		return nil
	}

	if ref.Size > 0 && info.Size() != ref.Size {
		return errkind.New(errkind.IO, fmt.Sprintf("payload %s size mismatch: want %d got %d", ref.Key, ref.Size, info.Size()))
	}

	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifyCatalog checks path's signature against a catalog file. The wire
// format of signing catalogs is platform-specific and out of scope (§9);
// this engine checks only that the catalog file is present and readable,
// leaving real signature verification to a platform-specific collaborator
// swapped in at deployment time.
func verifyCatalog(path, catalogFile string) error {
	if _, err := os.Stat(catalogFile); err != nil {
		return fmt.Errorf("catalog file %s unavailable: %w", catalogFile, err)
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return nil
}
