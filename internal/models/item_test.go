package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemIdentity(t *testing.T) {
	tests := []struct {
		want    ItemIdentity
		name    string
		input   string
		wantErr bool
	}{
		{name: "prefab only", input: "Wood", want: ItemIdentity{PrefabID: "Wood", Quality: 1}},
		{name: "with quality", input: "SwordIron:3", want: ItemIdentity{PrefabID: "SwordIron", Quality: 3}},
		{name: "full", input: "CapeLinen:2:4", want: ItemIdentity{PrefabID: "CapeLinen", Quality: 2, Variant: 4}},
		{name: "empty", input: "", wantErr: true},
		{name: "bad quality", input: "Wood:x", wantErr: true},
		{name: "too many parts", input: "a:1:2:3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseItemIdentity(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) ItemIdentity {
	t.Helper()
	id, err := ParseItemIdentity(s)
	require.NoError(t, err)
	return id
}

func TestItemIdentity_Less(t *testing.T) {
	a := ItemIdentity{PrefabID: "Stone", Quality: 1}
	b := ItemIdentity{PrefabID: "Wood", Quality: 1}
	c := ItemIdentity{PrefabID: "Wood", Quality: 2}
	d := ItemIdentity{PrefabID: "Wood", Quality: 2, Variant: 1}

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.True(t, c.Less(d))
	assert.False(t, d.Less(a))
	assert.False(t, a.Less(a))
}

func TestReservationRecord_Expired(t *testing.T) {
	now := time.Unix(1000, 0)
	r := &ReservationRecord{ExpiresAt: now.Add(3 * time.Second)}

	assert.False(t, r.Expired(now))
	assert.False(t, r.Expired(now.Add(2999*time.Millisecond)))
	assert.True(t, r.Expired(now.Add(3*time.Second)))
}

func TestVec3_DistanceTo(t *testing.T) {
	assert.InDelta(t, 5.0, Vec3{}.DistanceTo(Vec3{X: 3, Y: 4}), 1e-9)
}
