// Package firestore implements the Provider interface using Google Cloud Firestore Native Mode.
package firestore

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*FirestoreProvider)(nil)

const defaultCollection = "rollcall"

// FirestoreProvider implements the Provider interface backed by Firestore Native Mode.
type FirestoreProvider struct {
	client     *firestore.Client
	collection string
	logger     *slog.Logger
}

// New creates a new FirestoreProvider.
func New(cfg *types.FirestoreConfig) (*FirestoreProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("firestore config is required")
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firestore projectId is required")
	}

	// Support the Firestore emulator via FIRESTORE_EMULATOR_HOST or config.
	if cfg.Emulator != "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.Emulator)
	}

	client, err := firestore.NewClient(context.Background(), cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating Firestore client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = defaultCollection
	}

	return &FirestoreProvider{
		client:     client,
		collection: collection,
		logger:     slog.Default(),
	}, nil
}

// coll returns the primary collection reference.
func (p *FirestoreProvider) coll() *firestore.CollectionRef {
	return p.client.Collection(p.collection)
}

func (p *FirestoreProvider) doc(pk, sk string) *firestore.DocumentRef {
	return p.coll().Doc(docID(pk, sk))
}

// Start initializes the provider.
func (p *FirestoreProvider) Start(_ context.Context) error {
	return nil
}

// Stop closes the Firestore client.
func (p *FirestoreProvider) Stop(_ context.Context) error {
	return p.client.Close()
}

// Ping checks connectivity by reading a non-existent document.
func (p *FirestoreProvider) Ping(ctx context.Context) error {
	_, err := p.coll().Doc("__ping__").Get(ctx)
	// NotFound means the round trip worked.
	if err == nil || isNotFound(err) {
		return nil
	}
	return fmt.Errorf("firestore ping failed: %w", err)
}
