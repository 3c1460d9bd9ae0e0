package firestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// PutSubject stores a subject definition.
func (p *FirestoreProvider) PutSubject(ctx context.Context, subject types.Subject) error {
	data, err := json.Marshal(subject)
	if err != nil {
		return fmt.Errorf("marshaling subject: %w", err)
	}
	_, err = p.doc(subjectPK(subject.ID), skMeta).Set(ctx, map[string]interface{}{
		fieldData:   string(data),
		fieldGSI1PK: typeSubject,
		fieldGSI1SK: subjectPK(subject.ID),
	})
	return err
}

// ListSubjects returns every subject ordered by ID.
func (p *FirestoreProvider) ListSubjects(ctx context.Context) ([]types.Subject, error) {
	var subjects []types.Subject
	err := eachDoc(ctx, p.coll().Where(fieldGSI1PK, "==", typeSubject), func(snap *firestore.DocumentSnapshot) {
		var s types.Subject
		if err := snapJSON(snap, fieldData, &s); err != nil {
			p.logger.Warn("skipping corrupt subject data", "doc", snap.Ref.ID, "error", err)
			return
		}
		subjects = append(subjects, s)
	})
	if err != nil {
		return nil, fmt.Errorf("listing subjects: %w", err)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].ID < subjects[j].ID })
	return subjects, nil
}

// PutRosterEntry enrolls a student, merging so the stored streak survives.
func (p *FirestoreProvider) PutRosterEntry(ctx context.Context, subjectID string, entry types.RosterEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling roster entry: %w", err)
	}
	_, err = p.doc(subjectPK(subjectID), studentSK(entry.StudentID)).Set(ctx, map[string]interface{}{
		fieldData: string(data),
	}, firestore.MergeAll)
	return err
}

// ListRoster returns the subject's enrolled students with their per-subject
// streak state.
func (p *FirestoreProvider) ListRoster(ctx context.Context, subjectID string) ([]types.RosterEntry, error) {
	var entries []types.RosterEntry
	q := p.prefixQuery(subjectPK(subjectID), prefixStudent)
	err := eachDoc(ctx, q, func(snap *firestore.DocumentSnapshot) {
		entry := types.RosterEntry{StudentID: strings.TrimPrefix(extractSK(snap.Ref.ID), prefixStudent)}
		if _, err := snap.DataAt(fieldData); err == nil {
			if err := snapJSON(snap, fieldData, &entry); err != nil {
				p.logger.Warn("skipping corrupt roster data", "doc", snap.Ref.ID, "error", err)
				return
			}
		}
		st, err := snapStreak(snap)
		if err != nil {
			p.logger.Warn("ignoring corrupt streak state", "doc", snap.Ref.ID, "error", err)
		}
		entry.Streak = st
		entries = append(entries, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("listing roster for %q: %w", subjectID, err)
	}
	return entries, nil
}
