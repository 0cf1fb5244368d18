package core

import (
	"encoding/json"
	"fmt"
)

// SnapshotSchemaVersion identifies the snapshot envelope layout. The
// schema evolves append-only (new optional fields), since old closures
// must stay readable forever.
const SnapshotSchemaVersion = 1

type (
	// BalanceBreakdown is the full monthly balance picture: total spent,
	// per-member target/paid/delta and the single settlement transfer
	// that zeroes both deltas. Computed live for open months,
	// reconstructed from the stored snapshot for closed ones.
	BalanceBreakdown struct {
		Year       int             `json:"year"`
		Month      int             `json:"month"`
		TotalCents int64           `json:"totalCents"`
		Currency   string          `json:"currency"`
		Mode       SplitMode       `json:"mode"`
		Members    []MemberBalance `json:"members"`
		Settlement *Settlement     `json:"settlement"`
		IsClosed   bool            `json:"isClosed"`
	}

	MemberBalance struct {
		UserID      int64   `json:"userId"`
		DisplayName string  `json:"displayName"`
		Weight      float64 `json:"weight"`
		TargetCents int64   `json:"targetCents"`
		PaidCents   int64   `json:"paidCents"`
		DeltaCents  int64   `json:"deltaCents"`
	}

	// Settlement is the one transfer that settles the month. Amount is
	// always positive; a balanced month has no settlement at all.
	Settlement struct {
		FromUserID  int64 `json:"fromUserId"`
		ToUserID    int64 `json:"toUserId"`
		AmountCents int64 `json:"amountCents"`
	}

	snapshotEnvelope struct {
		SchemaVersion int              `json:"schemaVersion"`
		Balance       BalanceBreakdown `json:"balance"`
	}
)

// EncodeSnapshot serializes a breakdown into the versioned snapshot
// envelope persisted with a month closure.
func EncodeSnapshot(b BalanceBreakdown) ([]byte, error) {
	data, err := json.Marshal(snapshotEnvelope{
		SchemaVersion: SnapshotSchemaVersion,
		Balance:       b,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot reconstructs the breakdown stored in a closure
// snapshot, field-for-field identical to what was serialized.
func DecodeSnapshot(data []byte) (BalanceBreakdown, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return BalanceBreakdown{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if env.SchemaVersion > SnapshotSchemaVersion {
		return BalanceBreakdown{}, fmt.Errorf("unsupported snapshot schema version %d", env.SchemaVersion)
	}
	return env.Balance, nil
}
