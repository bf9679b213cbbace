// Package auditlog keeps a hash-chained, append-only record of completed
// analyses and pattern catalog changes. Each entry commits to its predecessor,
// so tampering with any stored entry breaks Verify from that point on.
package auditlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GenesisHash anchors the chain. The genesis entry carries it verbatim
// instead of a computed hash.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// SystemActor is the actor recorded on the genesis entry and on changes
// made without an authenticated user.
const SystemActor = "threatlens-system"

// Actions recorded in the ledger.
const (
	ActionGenesis        = "genesis"
	ActionAnalysis       = "analysis.completed"
	ActionPatternAdded   = "pattern.added"
	ActionPatternUpdated = "pattern.updated"
	ActionPatternRemoved = "pattern.removed"
)

// ErrNotFound is returned when a sequence number is outside the chain.
var ErrNotFound = errors.New("audit entry not found")

// Entry is one link in the audit chain.
type Entry struct {
	Seq           int       `json:"seq"`
	RecordedAt    time.Time `json:"recordedAt"`
	ThreatModelID string    `json:"threatModelId,omitempty"`
	Subject       string    `json:"subject,omitempty"` // analysis or pattern id
	Action        string    `json:"action"`
	Actor         string    `json:"actor"`
	Summary       string    `json:"summary,omitempty"`
	Digest        string    `json:"digest"` // sha256 of the JSON payload
	PrevHash      string    `json:"prevHash"`
	Hash          string    `json:"hash"`
}

// Record is what callers hand to Append. Payload is JSON-encoded and only
// its digest is kept.
type Record struct {
	ThreatModelID string
	Subject       string
	Action        string
	Actor         string
	Summary       string
	Payload       any
}

// ChainError reports the first entry at which Verify found an inconsistency.
type ChainError struct {
	Seq    int
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain invalid at seq %d: %s", e.Seq, e.Reason)
}

// Ledger is implemented by MemoryLedger and PostgresLedger.
type Ledger interface {
	// Append links a new entry to the current head.
	Append(ctx context.Context, r Record) (*Entry, error)

	// Get returns the entry with the given sequence number.
	Get(ctx context.Context, seq int) (*Entry, error)

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Len counts entries, genesis included.
	Len(ctx context.Context) (int, error)

	// Verify walks the whole chain. It returns a *ChainError on the first
	// broken link.
	Verify(ctx context.Context) error

	// Head returns the hash of the newest entry.
	Head(ctx context.Context) (string, error)
}

func genesis(at time.Time) Entry {
	return Entry{
		Seq:        0,
		RecordedAt: at.UTC(),
		Action:     ActionGenesis,
		Actor:      SystemActor,
		Digest:     GenesisHash,
		PrevHash:   GenesisHash,
		Hash:       GenesisHash,
	}
}

// link fills in the chained fields of a new entry following prev.
func link(prev *Entry, r Record, at time.Time) (Entry, error) {
	digest, err := digestOf(r.Payload)
	if err != nil {
		return Entry{}, err
	}
	actor := r.Actor
	if actor == "" {
		actor = SystemActor
	}
	e := Entry{
		Seq:           prev.Seq + 1,
		RecordedAt:    at.UTC(),
		ThreatModelID: r.ThreatModelID,
		Subject:       r.Subject,
		Action:        r.Action,
		Actor:         actor,
		Summary:       r.Summary,
		Digest:        digest,
		PrevHash:      prev.Hash,
	}
	e.Hash = computeHash(&e)
	return e, nil
}

func digestOf(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode audit payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// computeHash is never applied to the genesis entry.
func computeHash(e *Entry) string {
	fields := []string{
		strconv.Itoa(e.Seq),
		e.RecordedAt.UTC().Format(time.RFC3339Nano),
		e.ThreatModelID, e.Subject, e.Action, e.Actor, e.Summary,
		e.Digest, e.PrevHash,
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// verifyLink checks curr against its predecessor. prev is nil for genesis.
func verifyLink(prev, curr *Entry) error {
	if prev == nil {
		if curr.Seq != 0 || curr.Hash != GenesisHash {
			return &ChainError{Seq: curr.Seq, Reason: "bad genesis entry"}
		}
		return nil
	}
	if curr.Seq != prev.Seq+1 {
		return &ChainError{Seq: curr.Seq, Reason: "sequence gap"}
	}
	if curr.PrevHash != prev.Hash {
		return &ChainError{Seq: curr.Seq, Reason: "previous hash mismatch"}
	}
	if curr.Hash != computeHash(curr) {
		return &ChainError{Seq: curr.Seq, Reason: "hash mismatch"}
	}
	return nil
}
