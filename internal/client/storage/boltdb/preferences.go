package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophstorage/internal/client/storage"
	"github.com/iudanet/gophstorage/internal/models"
)

// SaveView stores view preferences for a terminal
func (s *Storage) SaveView(ctx context.Context, terminalID string, prefs *storage.ViewPreferences) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketPreferences)
		if bucket == nil {
			return fmt.Errorf("preferences bucket not found")
		}

		data, err := json.Marshal(prefs)
		if err != nil {
			return fmt.Errorf("failed to marshal view preferences: %w", err)
		}

		if err := bucket.Put([]byte(terminalID), data); err != nil {
			return fmt.Errorf("failed to save view preferences: %w", err)
		}
		return nil
	})
}

// GetView retrieves view preferences for a terminal
func (s *Storage) GetView(ctx context.Context, terminalID string) (*storage.ViewPreferences, error) {
	var prefs *storage.ViewPreferences

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketPreferences)
		if bucket == nil {
			return fmt.Errorf("preferences bucket not found")
		}

		data := bucket.Get([]byte(terminalID))
		if data == nil {
			return storage.ErrPreferencesNotFound
		}

		prefs = &storage.ViewPreferences{}
		if err := json.Unmarshal(data, prefs); err != nil {
			return fmt.Errorf("failed to unmarshal view preferences: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return prefs, nil
}

// SaveLastRevision remembers the last revision seen on a terminal
func (s *Storage) SaveLastRevision(ctx context.Context, terminalID string, revision int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRevisions)
		if bucket == nil {
			return fmt.Errorf("revisions bucket not found")
		}

		// Конвертируем int64 в bytes
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(revision))

		if err := bucket.Put([]byte(terminalID), buf); err != nil {
			return fmt.Errorf("failed to save last revision: %w", err)
		}
		return nil
	})
}

// GetLastRevision returns 0 if the terminal was never viewed
func (s *Storage) GetLastRevision(ctx context.Context, terminalID string) (int64, error) {
	var revision int64

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRevisions)
		if bucket == nil {
			return fmt.Errorf("revisions bucket not found")
		}

		buf := bucket.Get([]byte(terminalID))
		if buf == nil {
			return nil
		}
		revision = int64(binary.BigEndian.Uint64(buf))
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to get last revision: %w", err)
	}

	return revision, nil
}

type bagLine struct {
	Item   string `json:"item"`
	Amount int    `json:"amount"`
}

// SaveBag stores the player's local inventory mirror
func (s *Storage) SaveBag(ctx context.Context, playerID string, items map[models.ItemIdentity]int) error {
	lines := make([]bagLine, 0, len(items))
	for id, n := range items {
		if n > 0 {
			lines = append(lines, bagLine{Item: id.String(), Amount: n})
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Item < lines[j].Item })

	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to marshal bag: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketBags)
		if bucket == nil {
			return fmt.Errorf("bags bucket not found")
		}
		if err := bucket.Put([]byte(playerID), data); err != nil {
			return fmt.Errorf("failed to save bag: %w", err)
		}
		return nil
	})
}

// GetBag returns the stored bag, empty for an unknown player
func (s *Storage) GetBag(ctx context.Context, playerID string) (map[models.ItemIdentity]int, error) {
	var lines []bagLine

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketBags)
		if bucket == nil {
			return fmt.Errorf("bags bucket not found")
		}
		data := bucket.Get([]byte(playerID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &lines)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get bag: %w", err)
	}

	items := make(map[models.ItemIdentity]int, len(lines))
	for _, l := range lines {
		id, err := models.ParseItemIdentity(l.Item)
		if err != nil {
			return nil, fmt.Errorf("failed to parse bag item %q: %w", l.Item, err)
		}
		items[id] += l.Amount
	}
	return items, nil
}
