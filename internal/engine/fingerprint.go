package engine

import (
	"encoding/binary"
	"encoding/hex"
	"io"

	"github.com/cespare/xxhash/v2"
)

// SessionFingerprint returns a deterministic hash of a session's identity
// and content, used to key cached profiles. Two sessions with identical
// id, message contents, and timestamps share a fingerprint.
func SessionFingerprint(s *Session) string {
	h := xxhash.New()
	_, _ = io.WriteString(h, s.SessionID)
	writeUint64(h, uint64(len(s.Messages)))
	writeUint64(h, uint64(s.LastActivity.UnixNano()))
	for _, m := range s.Messages {
		_, _ = io.WriteString(h, string(m.Role))
		_, _ = io.WriteString(h, m.Content)
		writeUint64(h, uint64(m.Timestamp.UnixNano()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TextFingerprint returns a deterministic hash of raw text.
func TextFingerprint(text string) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], xxhash.Sum64String(text))
	return hex.EncodeToString(buf[:])
}

// RelationFingerprint keys a relationship computation on the target plus
// the full candidate set, so a changed candidate list misses the cache.
// Nil candidates hash as an empty slot; the mapper skips them during
// scoring.
func RelationFingerprint(target *Session, candidates []*Session) string {
	h := xxhash.New()
	_, _ = io.WriteString(h, SessionFingerprint(target))
	writeUint64(h, uint64(len(candidates)))
	for _, c := range candidates {
		if c == nil {
			writeUint64(h, 0)
			continue
		}
		_, _ = io.WriteString(h, c.SessionID)
		writeUint64(h, uint64(c.LastActivity.UnixNano()))
		writeUint64(h, uint64(len(c.Messages)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeUint64(w io.Writer, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = w.Write(buf[:])
}
