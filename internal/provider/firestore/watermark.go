package firestore

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

func (p *FirestoreProvider) watermarkRef() *firestore.DocumentRef {
	return p.doc(pkWatermark, skWatermark)
}

func decodeWatermark(snap *firestore.DocumentSnapshot) (types.Watermark, error) {
	var wm types.Watermark
	if err := snapJSON(snap, fieldData, &wm); err != nil {
		return types.Watermark{}, fmt.Errorf("decoding watermark: %w", err)
	}
	return wm, nil
}

// GetWatermark returns the singleton progress record, or the zero value when
// none has been written yet.
func (p *FirestoreProvider) GetWatermark(ctx context.Context) (types.Watermark, error) {
	snap, err := p.watermarkRef().Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return types.Watermark{}, nil
		}
		return types.Watermark{}, fmt.Errorf("reading watermark: %w", err)
	}
	return decodeWatermark(snap)
}

// UpdateWatermark runs fn inside a transaction. Firestore retries the
// transaction on contention, re-running fn against the fresh record.
func (p *FirestoreProvider) UpdateWatermark(ctx context.Context, fn provider.WatermarkMutator) (bool, error) {
	ref := p.watermarkRef()
	var wrote bool
	err := p.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		wrote = false

		var cur types.Watermark
		snap, err := tx.Get(ref)
		switch {
		case isNotFound(err):
		case err != nil:
			return err
		default:
			if cur, err = decodeWatermark(snap); err != nil {
				return err
			}
		}

		next, write := fn(cur)
		if !write {
			return nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshaling watermark: %w", err)
		}
		wrote = true
		return tx.Set(ref, map[string]interface{}{fieldData: string(data)})
	})
	if err != nil {
		return false, fmt.Errorf("updating watermark: %w", err)
	}
	return wrote, nil
}
