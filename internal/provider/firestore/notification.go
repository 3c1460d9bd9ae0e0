package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

const defaultNotificationLimit = 50

// ListNotifications returns notifications newest first. An empty studentID
// lists across all students, which needs a composite index on
// (gsi1pk, gsi1sk desc).
func (p *FirestoreProvider) ListNotifications(ctx context.Context, studentID string, limit int) ([]types.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}

	var q firestore.Query
	if studentID == "" {
		q = p.coll().Where(fieldGSI1PK, "==", typeNotification).OrderBy(fieldGSI1SK, firestore.Desc)
	} else {
		q = p.prefixQuery(studentPK(studentID), prefixNotification).OrderBy(firestore.DocumentID, firestore.Desc)
	}

	var notes []types.Notification
	err := eachDoc(ctx, q.Limit(limit), func(snap *firestore.DocumentSnapshot) {
		var n types.Notification
		if err := snapJSON(snap, fieldData, &n); err != nil {
			p.logger.Warn("skipping corrupt notification data", "doc", snap.Ref.ID, "error", err)
			return
		}
		n.Resolved = n.Resolved || snapBool(snap, fieldResolved)
		notes = append(notes, n)
	})
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return notes, nil
}

// ResolveNotification marks a notification resolved.
func (p *FirestoreProvider) ResolveNotification(ctx context.Context, studentID, notificationID string) error {
	_, err := p.doc(studentPK(studentID), notificationSK(notificationID)).Update(ctx, []firestore.Update{
		{Path: fieldResolved, Value: true},
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("notification %q: %w", notificationID, provider.ErrNotFound)
		}
		return err
	}
	return nil
}
