package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophstorage/internal/client/storage"
)

var profileKey = []byte("current")

// SaveProfile stores the logged in profile
func (s *Storage) SaveProfile(ctx context.Context, p *storage.Profile) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketProfile)
		if bucket == nil {
			return fmt.Errorf("profile bucket not found")
		}

		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal profile: %w", err)
		}

		if err := bucket.Put(profileKey, data); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}

		return nil
	})
}

// GetProfile retrieves the stored profile
func (s *Storage) GetProfile(ctx context.Context) (*storage.Profile, error) {
	var p *storage.Profile

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketProfile)
		if bucket == nil {
			return fmt.Errorf("profile bucket not found")
		}

		data := bucket.Get(profileKey)
		if data == nil {
			return storage.ErrProfileNotFound
		}

		p = &storage.Profile{}
		if err := json.Unmarshal(data, p); err != nil {
			return fmt.Errorf("failed to unmarshal profile: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return p, nil
}

// DeleteProfile removes the stored profile (logout)
func (s *Storage) DeleteProfile(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketProfile)
		if bucket == nil {
			return fmt.Errorf("profile bucket not found")
		}

		// Проверяем существование данных
		if bucket.Get(profileKey) == nil {
			return storage.ErrProfileNotFound
		}

		if err := bucket.Delete(profileKey); err != nil {
			return fmt.Errorf("failed to delete profile: %w", err)
		}

		return nil
	})
}

// IsAuthenticated checks if an unexpired profile exists
func (s *Storage) IsAuthenticated(ctx context.Context) (bool, error) {
	p, err := s.GetProfile(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrProfileNotFound) {
			return false, nil
		}
		return false, err
	}

	// Проверяем, не истек ли токен
	if time.Now().Unix() >= p.ExpiresAt {
		return false, nil
	}

	return true, nil
}
