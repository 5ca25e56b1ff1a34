package terminal

import (
	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/pkg/api"
)

// ToAPI converts a snapshot into its wire form
func (s *Snapshot) ToAPI() *api.Snapshot {
	if s == nil {
		return nil
	}

	items := make([]api.ItemTotal, len(s.Items))
	for i, t := range s.Items {
		items[i] = api.ItemTotal{
			Item:        IdentityToAPI(t.Identity),
			DisplayName: t.DisplayName,
			Amount:      t.TotalAmount,
			SourceCount: t.SourceCount,
			StackLimit:  t.StackLimit,
		}
	}

	return &api.Snapshot{
		SessionID:          s.SessionID,
		TerminalID:         s.TerminalID,
		Items:              items,
		Revision:           s.Revision,
		SlotsUsedVirtual:   s.SlotsUsedVirtual,
		SlotsTotalPhysical: s.SlotsTotalPhysical,
		ChestCount:         s.ChestCount,
	}
}

// ToAPI converts a result into the response payload
func (r *Result) ToAPI() api.SessionResponse {
	return api.SessionResponse{
		Snapshot:        r.Snapshot.ToAPI(),
		Reason:          r.Reason,
		Token:           r.Token,
		Revision:        r.Revision,
		ReservedAmount:  r.ReservedAmount,
		CommittedAmount: r.CommittedAmount,
		RestoredAmount:  r.RestoredAmount,
		DroppedAmount:   r.DroppedAmount,
		StoredAmount:    r.StoredAmount,
		ReturnedAmount:  r.ReturnedAmount,
		Success:         r.Success,
	}
}

// ToAPI converts a delta into the push payload
func (d Delta) ToAPI() api.SessionDelta {
	return api.SessionDelta{
		Snapshot:   d.Snapshot.ToAPI(),
		TerminalID: d.TerminalID,
		Revision:   d.Revision,
		Success:    true,
	}
}

// IdentityToAPI converts an item identity into its wire form
func IdentityToAPI(id models.ItemIdentity) api.ItemIdentity {
	return api.ItemIdentity{PrefabID: id.PrefabID, Quality: id.Quality, Variant: id.Variant}
}

// IdentityFromAPI converts a wire identity into the model
func IdentityFromAPI(id api.ItemIdentity) models.ItemIdentity {
	return models.ItemIdentity{PrefabID: id.PrefabID, Quality: id.Quality, Variant: id.Variant}
}

// Vec3FromAPI converts a wire position into the model
func Vec3FromAPI(v api.Vec3) models.Vec3 {
	return models.Vec3{X: v.X, Y: v.Y, Z: v.Z}
}
