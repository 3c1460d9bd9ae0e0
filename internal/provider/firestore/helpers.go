package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// isNotFound returns true if the error is a Firestore NotFound error.
func isNotFound(err error) bool {
	return err != nil && status.Code(err) == codes.NotFound
}

// isAlreadyExists returns true if a Create hit an existing document.
func isAlreadyExists(err error) bool {
	return err != nil && status.Code(err) == codes.AlreadyExists
}

// docIDPrefix returns the prefix for range queries on document IDs.
// Firestore doesn't have begins_with, so we use >= prefix and < prefixEnd.
func docIDPrefix(pk, skPrefix string) (string, string) {
	start := pk + sep + skPrefix
	end := pk + sep + incrementLastChar(skPrefix)
	return start, end
}

// incrementLastChar increments the last character of a string to create an exclusive upper bound.
func incrementLastChar(s string) string {
	if s == "" {
		return "\uffff"
	}
	return s[:len(s)-1] + string(rune(s[len(s)-1]+1))
}

// extractSK extracts the SK portion from a document ID.
func extractSK(docName string) string {
	idx := strings.Index(docName, sep)
	if idx < 0 {
		return docName
	}
	return docName[idx+len(sep):]
}

// prefixQuery selects the documents whose ID starts with pk|skPrefix.
func (p *FirestoreProvider) prefixQuery(pk, skPrefix string) firestore.Query {
	start, end := docIDPrefix(pk, skPrefix)
	return p.coll().
		Where(firestore.DocumentID, ">=", p.coll().Doc(start)).
		Where(firestore.DocumentID, "<", p.coll().Doc(end))
}

// eachDoc calls fn for every document the query returns.
func eachDoc(ctx context.Context, q firestore.Query, fn func(*firestore.DocumentSnapshot)) error {
	iter := q.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(snap)
	}
}

// snapString extracts a string field from a Firestore document snapshot.
func snapString(snap *firestore.DocumentSnapshot, key string) (string, error) {
	raw, err := snap.DataAt(key)
	if err != nil {
		return "", fmt.Errorf("missing field %q: %w", key, err)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("field %q is not a string", key)
	}
	return s, nil
}

// snapBool extracts a boolean field, returning false when absent.
func snapBool(snap *firestore.DocumentSnapshot, key string) bool {
	raw, err := snap.DataAt(key)
	if err != nil {
		return false
	}
	b, _ := raw.(bool)
	return b
}

// snapJSON decodes the JSON string stored in a field into v.
func snapJSON(snap *firestore.DocumentSnapshot, key string, v any) error {
	s, err := snapString(snap, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("unmarshaling %q: %w", key, err)
	}
	return nil
}

// snapStreak returns the streak state on a document, or the zero state when
// the document or field is missing.
func snapStreak(snap *firestore.DocumentSnapshot) (types.StreakState, error) {
	var st types.StreakState
	if snap == nil || !snap.Exists() {
		return st, nil
	}
	if _, err := snap.DataAt(fieldStreak); err != nil {
		return st, nil
	}
	err := snapJSON(snap, fieldStreak, &st)
	return st, err
}
