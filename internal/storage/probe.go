package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
)

// Probe writes, reads back and deletes a small object to prove the store is usable.
func Probe(ctx context.Context, s FaceStore) (string, error) {
	key := fmt.Sprintf("probe-%d", time.Now().UnixNano())
	payload := []byte("probe")

	ref, err := s.Save(ctx, key, payload)
	if err != nil {
		return "", fmt.Errorf("probe save: %w", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		return ref, fmt.Errorf("probe get: %w", err)
	}
	if !bytes.Equal(got, payload) {
		return ref, errors.New("probe read back different bytes")
	}
	if err := s.Delete(ctx, key); err != nil {
		return ref, fmt.Errorf("probe delete: %w", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		return ref, fmt.Errorf("probe object still present after delete: %v", err)
	}
	return ref, nil
}
