package firestore

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

func (p *FirestoreProvider) attendanceDoc(fact types.AttendanceFact) (*firestore.DocumentRef, map[string]interface{}, error) {
	data, err := json.Marshal(fact)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling attendance: %w", err)
	}
	ref := p.doc(attendancePK(fact.Date, fact.SubjectID), studentSK(fact.StudentID))
	return ref, map[string]interface{}{fieldData: string(data)}, nil
}

// PutAttendance writes a fact, replacing any existing one for the same key.
func (p *FirestoreProvider) PutAttendance(ctx context.Context, fact types.AttendanceFact) error {
	ref, fields, err := p.attendanceDoc(fact)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, fields)
	return err
}

// CreateAttendance writes a fact only when no fact exists for its key.
func (p *FirestoreProvider) CreateAttendance(ctx context.Context, fact types.AttendanceFact) (bool, error) {
	ref, fields, err := p.attendanceDoc(fact)
	if err != nil {
		return false, err
	}
	if _, err := ref.Create(ctx, fields); err != nil {
		if isAlreadyExists(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListAttendance returns every fact recorded for a subject on a day.
func (p *FirestoreProvider) ListAttendance(ctx context.Context, date, subjectID string) ([]types.AttendanceFact, error) {
	var facts []types.AttendanceFact
	q := p.prefixQuery(attendancePK(date, subjectID), prefixStudent)
	err := eachDoc(ctx, q, func(snap *firestore.DocumentSnapshot) {
		var f types.AttendanceFact
		if err := snapJSON(snap, fieldData, &f); err != nil {
			p.logger.Warn("skipping corrupt attendance data", "doc", snap.Ref.ID, "error", err)
			return
		}
		facts = append(facts, f)
	})
	if err != nil {
		return nil, fmt.Errorf("listing attendance for %s/%s: %w", date, subjectID, err)
	}
	return facts, nil
}
