package store

import (
	"context"

	"github.com/rcliao/parrot/internal/model"
)

// Export returns every readable record of a namespace.
func (s *Store) Export(ctx context.Context, ns string) ([]model.Entry, error) {
	entries := []model.Entry{}
	err := s.Scan(ctx, ns, func(e model.Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// Import writes records from an export, overwriting records with the same
// context key. Records that break the total invariant are skipped.
func (s *Store) Import(ctx context.Context, ns string, entries []model.Entry) (int, error) {
	imported := 0
	for _, e := range entries {
		if e.Words == "" || e.Validate() != nil {
			continue
		}
		if err := s.Set(ctx, ns, e.Words, e); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
