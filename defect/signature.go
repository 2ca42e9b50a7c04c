package defect

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
)

const normalizedLimit = 120

// Signature identifies a defect for deduplication within one run. Two defects with the same
// normalized title and pattern share a signature regardless of description or severity.
func Signature(d oracle.Defect) string {
	sum := sha256.Sum256([]byte(normalize(d.Title) + "|" + normalize(d.Pattern)))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	r := []rune(s)
	if len(r) > normalizedLimit {
		r = r[:normalizedLimit]
	}
	return string(r)
}

// SignatureSet holds the signatures already reported in this run. It is not safe for
// concurrent use; the agent loop owns it.
type SignatureSet struct {
	seen map[string]struct{}
}

func NewSignatureSet() *SignatureSet {
	return &SignatureSet{seen: make(map[string]struct{})}
}

func (s *SignatureSet) Has(sig string) bool {
	_, ok := s.seen[sig]
	return ok
}

func (s *SignatureSet) Add(sig string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	s.seen[sig] = struct{}{}
}

func (s *SignatureSet) Len() int { return len(s.seen) }

// Reset forgets every signature.
func (s *SignatureSet) Reset() {
	s.seen = make(map[string]struct{})
}
