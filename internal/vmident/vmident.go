// Package vmident computes the identity this process reports to debuggers.
package vmident

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/highwayhash"
)

// Identity names this process. Fingerprint changes on every run; BinaryHash
// only when the executable does.
type Identity struct {
	Fingerprint uuid.UUID
	Pid         int
	StartTime   time.Time
	// BinaryHash is the hex HighwayHash-64 of the executable, or empty if it
	// could not be read.
	BinaryHash string
}

// String renders the identity as fingerprint:pid:start[:hash].
func (i Identity) String() string {
	s := fmt.Sprintf(
		"%s:%d:%d.%d",
		i.Fingerprint.String(),
		i.Pid,
		i.StartTime.Unix(),
		i.StartTime.UnixNano()-i.StartTime.Unix()*1_000_000_000,
	)
	if i.BinaryHash != "" {
		s += ":" + i.BinaryHash
	}
	return s
}

// This serves as an approximate start time for the process.
var startTime = time.Now()

var processFingerprint = uuid.New()

type binaryHashOnce struct {
	sync.Once
	hash string
	err  error
}

var hash binaryHashOnce

// Get returns the process identity. The executable is hashed on the first call
// only. A hashing failure is returned alongside an identity without a hash.
func Get() (Identity, error) {
	hash.Once.Do(func() {
		hash.hash, hash.err = hashExecutable()
	})
	id := Identity{
		Fingerprint: processFingerprint,
		Pid:         os.Getpid(),
		StartTime:   startTime,
		BinaryHash:  hash.hash,
	}
	return id, hash.err
}

var hashKey = [32]byte{}

func hashExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	f, err := os.Open(exe)
	if err != nil {
		return "", fmt.Errorf("failed to open executable file at %s: %w", exe, err)
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader returns the hex HighwayHash-64 of everything in r.
func HashReader(r io.Reader) (string, error) {
	hasher, err := highwayhash.New64(hashKey[:])
	if err != nil {
		return "", fmt.Errorf("failed to create hasher: %w", err)
	}
	if _, err := io.Copy(hasher, bufio.NewReader(r)); err != nil {
		return "", fmt.Errorf("failed to hash executable: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
