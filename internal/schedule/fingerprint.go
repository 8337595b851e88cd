package schedule

import (
	"crypto/md5"
	"encoding/hex"
	"slices"
	"strings"
)

// Fingerprint is the hex-encoded MD5 digest of a snapshot's links joined
// with "\n". The empty value means "unknown".
type Fingerprint string

func (f Fingerprint) IsZero() bool   { return f == "" }
func (f Fingerprint) String() string { return string(f) }

// Short is a log-friendly prefix of the digest.
func (f Fingerprint) Short() string {
	if len(f) <= 8 {
		return string(f)
	}
	return string(f[:8])
}

// Valid reports whether f looks like a persisted digest.
func (f Fingerprint) Valid() bool {
	if len(f) != md5.Size*2 {
		return false
	}
	_, err := hex.DecodeString(string(f))
	return err == nil
}

// Options tune fingerprinting. The zero value is order sensitive.
type Options struct {
	// SortLinks makes the digest insensitive to the page reordering links.
	SortLinks bool
}

// Compute fingerprints s in snapshot order.
func Compute(s Snapshot) Fingerprint { return ComputeWith(s, Options{}) }

func ComputeWith(s Snapshot, opt Options) Fingerprint {
	links := s.Links()
	if opt.SortLinks {
		slices.Sort(links)
	}
	sum := md5.Sum([]byte(strings.Join(links, "\n")))
	return Fingerprint(hex.EncodeToString(sum[:]))
}
