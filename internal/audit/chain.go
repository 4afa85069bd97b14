package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	id "heirloom/pkg/domain"
)

// Entry is one link in the tamper-evident audit chain: the event plus
// the hash of the previous entry and this entry's own hash.
type Entry struct {
	Event    Event
	PrevHash string
	Hash     string
}

// chainPayload is the canonical serialization hashed for each entry.
// All fields are flat, deterministic-order struct fields (no maps) so
// json.Marshal yields a reproducible byte sequence.
type chainPayload struct {
	Timestamp string `json:"ts"`
	UserID    string `json:"user_id"`
	Subject   string `json:"subject"`
	Action    string `json:"action"`
	Result    string `json:"result"`
	Reason    string `json:"reason"`
	Risk      string `json:"risk"`
	RequestID string `json:"request_id"`
	ActorID   string `json:"actor_id"`
	PrevHash  string `json:"prev_hash"`
}

// ComputeHash returns the hex-encoded SHA-256 over the event content and
// the previous entry's hash. The chain root uses an empty prev hash.
func ComputeHash(event Event, prevHash string) string {
	payload := chainPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		UserID:    userIDString(event.UserID),
		Subject:   event.Subject,
		Action:    event.Action,
		Result:    event.Result,
		Reason:    event.Reason,
		Risk:      string(event.Risk),
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
		PrevHash:  prevHash,
	}
	// Marshal of a flat struct cannot fail.
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// VerifyChain walks entries in order and reports the index of the first
// broken link, or -1 when the chain is intact.
func VerifyChain(entries []Entry) int {
	prevHash := ""
	for i, entry := range entries {
		if entry.PrevHash != prevHash {
			return i
		}
		if ComputeHash(entry.Event, entry.PrevHash) != entry.Hash {
			return i
		}
		prevHash = entry.Hash
	}
	return -1
}

func userIDString(userID id.UserID) string {
	if userID.IsNil() {
		return ""
	}
	return userID.String()
}
