package firestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// applyChunkSize keeps each transaction under Firestore's 500-write limit;
// an update writes at most two documents.
const applyChunkSize = 200

func (p *FirestoreProvider) streakRef(u types.StreakUpdate) *firestore.DocumentRef {
	if u.Scope == types.ScopeGlobal {
		return p.doc(studentPK(u.StudentID), skGlobalStreak)
	}
	return p.doc(subjectPK(u.SubjectID), studentSK(u.StudentID))
}

func (p *FirestoreProvider) notificationDoc(n types.Notification) (*firestore.DocumentRef, map[string]interface{}, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling notification: %w", err)
	}
	return p.doc(studentPK(n.StudentID), notificationSK(n.ID)), map[string]interface{}{
		fieldData:   string(data),
		fieldGSI1PK: typeNotification,
		fieldGSI1SK: notificationSK(n.ID),
	}, nil
}

// GetGlobalStreaks reads global streak state. Students without state are
// absent from the result.
func (p *FirestoreProvider) GetGlobalStreaks(ctx context.Context, studentIDs []string) (map[string]types.StreakState, error) {
	result := make(map[string]types.StreakState, len(studentIDs))
	if len(studentIDs) == 0 {
		return result, nil
	}
	refs := make([]*firestore.DocumentRef, 0, len(studentIDs))
	for _, id := range studentIDs {
		refs = append(refs, p.doc(studentPK(id), skGlobalStreak))
	}
	snaps, err := p.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("reading global streaks: %w", err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		st, err := snapStreak(snap)
		if err != nil {
			p.logger.Warn("ignoring corrupt global streak", "doc", snap.Ref.ID, "error", err)
			continue
		}
		id := strings.TrimPrefix(strings.TrimSuffix(snap.Ref.ID, sep+skGlobalStreak), prefixStudent)
		result[id] = st
	}
	return result, nil
}

// ApplyStreakUpdates applies updates in transactions. Each update is guarded
// by the stored lastDate and carries its notification in the same
// transaction.
func (p *FirestoreProvider) ApplyStreakUpdates(ctx context.Context, updates []types.StreakUpdate) (types.ApplyResult, error) {
	var res types.ApplyResult
	for start := 0; start < len(updates); start += applyChunkSize {
		end := min(start+applyChunkSize, len(updates))
		chunk, err := p.applyChunk(ctx, updates[start:end])
		if err != nil {
			return res, err
		}
		res.Applied += chunk.Applied
		res.Skipped += chunk.Skipped
		res.Notifications = append(res.Notifications, chunk.Notifications...)
	}
	return res, nil
}

func (p *FirestoreProvider) applyChunk(ctx context.Context, updates []types.StreakUpdate) (types.ApplyResult, error) {
	refs := make([]*firestore.DocumentRef, len(updates))
	for i, u := range updates {
		refs[i] = p.streakRef(u)
	}

	var res types.ApplyResult
	err := p.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		res = types.ApplyResult{}

		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		for i, u := range updates {
			current, err := snapStreak(snaps[i])
			if err != nil {
				return fmt.Errorf("reading %s: %w", refs[i].ID, err)
			}
			if current.AppliedThrough(u.Date) {
				res.Skipped++
				continue
			}

			state, err := json.Marshal(u.State)
			if err != nil {
				return fmt.Errorf("marshaling streak: %w", err)
			}
			if err := tx.Set(refs[i], map[string]interface{}{
				fieldStreak:   string(state),
				fieldLastDate: u.Date,
			}, firestore.MergeAll); err != nil {
				return err
			}
			res.Applied++

			if u.Notification == nil {
				continue
			}
			ref, fields, err := p.notificationDoc(*u.Notification)
			if err != nil {
				return err
			}
			if err := tx.Create(ref, fields); err != nil {
				return err
			}
			res.Notifications = append(res.Notifications, *u.Notification)
		}
		return nil
	})
	if err != nil {
		return types.ApplyResult{}, fmt.Errorf("applying streak updates: %w", err)
	}
	return res, nil
}
