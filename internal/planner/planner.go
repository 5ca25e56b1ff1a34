// Package planner builds deterministic, capacity-respecting distribution plans
// for withdrawing items from, or depositing items into, a set of sources.
package planner

import "sort"

// Unbounded disables the maxReceivable clamp
const Unbounded = -1

// Candidate is one source able to give (withdraw) or take (deposit) items
type Candidate struct {
	SourceID string
	Distance float64
	// Amount is the available amount for withdraw plans and free space for deposit plans
	Amount int
}

// Step moves Amount units from or to SourceID
type Step struct {
	SourceID string
	Amount   int
}

// Plan is an ordered list of steps. Planned may be less than Requested.
type Plan struct {
	Steps     []Step
	Requested int
	Planned   int
}

// Shortfall returns how much of the request could not be planned
func (p Plan) Shortfall() int {
	return p.Requested - p.Planned
}

// PlanWithdraw распределяет снятие requested единиц по источникам,
// начиная с ближайших. Частичный план не является ошибкой.
func PlanWithdraw(candidates []Candidate, requested, maxReceivable int) Plan {
	return distribute(candidates, requested, maxReceivable)
}

// PlanDeposit распределяет размещение requested единиц по свободному месту
// источников, начиная с ближайших.
func PlanDeposit(candidates []Candidate, requested, maxReceivable int) Plan {
	return distribute(candidates, requested, maxReceivable)
}

func distribute(candidates []Candidate, requested, maxReceivable int) Plan {
	if requested < 0 {
		requested = 0
	}
	if maxReceivable != Unbounded && requested > maxReceivable {
		requested = max(maxReceivable, 0)
	}

	plan := Plan{Requested: requested}
	if requested == 0 {
		return plan
	}

	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Distance != ordered[j].Distance {
			return ordered[i].Distance < ordered[j].Distance
		}
		return ordered[i].SourceID < ordered[j].SourceID
	})

	remaining := requested
	for _, c := range ordered {
		if remaining == 0 {
			break
		}
		if c.Amount <= 0 {
			continue
		}
		take := min(c.Amount, remaining)
		plan.Steps = append(plan.Steps, Step{SourceID: c.SourceID, Amount: take})
		remaining -= take
	}

	plan.Planned = requested - remaining
	return plan
}
