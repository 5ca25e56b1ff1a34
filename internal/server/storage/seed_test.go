package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophstorage/internal/models"
)

func TestParseSeed(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid",
			raw: `
containers:
  - id: a
    slots: 2
    owner: alice
    position: {x: 1, y: 2, z: 3}
    items: [{item: "Wood:2:1", amount: 3}]
players:
  - id: alice
    slots: 8
`,
		},
		{name: "container without id", raw: "containers: [{slots: 1}]", wantErr: true},
		{name: "container without slots", raw: "containers: [{id: a}]", wantErr: true},
		{name: "duplicate container", raw: "containers: [{id: a, slots: 1}, {id: a, slots: 1}]", wantErr: true},
		{name: "bad item", raw: "containers: [{id: a, slots: 1, items: [{item: 'Wood:x', amount: 1}]}]", wantErr: true},
		{name: "zero amount", raw: "players: [{id: p, items: [{item: Wood, amount: 0}]}]", wantErr: true},
		{name: "player without id", raw: "players: [{slots: 3}]", wantErr: true},
		{name: "broken yaml", raw: "containers: [", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSeed([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, s.Containers, 1)
			assert.Equal(t, models.Vec3{X: 1, Y: 2, Z: 3}, s.Containers[0].Position)
			assert.Equal(t, "alice", s.Containers[0].Owner)

			items, err := ParseSeedItems(s.Containers[0].Items)
			require.NoError(t, err)
			assert.Equal(t, 3, items[models.ItemIdentity{PrefabID: "Wood", Quality: 2, Variant: 1}])
		})
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.yaml")
	require.NoError(t, os.WriteFile(path, []byte("players: [{id: bob, slots: 4}]"), 0o600))

	s, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, s.Players, 1)
	assert.Equal(t, "bob", s.Players[0].ID)

	_, err = LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
