package lead

import "lead-agent/internal/domain"

// Priority is the order in which unfilled slots are pursued. Index 0 is the
// most urgent. References are optional and never asked for directly.
var Priority = []domain.Slot{
	domain.SlotService,
	domain.SlotTimeline,
	domain.SlotBrandName,
	domain.SlotStyle,
	domain.SlotBudget,
	domain.SlotContactName,
	domain.SlotContactChannel,
}

// Missing returns the unfilled slots of l in Priority order.
func Missing(l domain.Lead) []domain.Slot {
	out := make([]domain.Slot, 0, len(Priority))
	for _, s := range Priority {
		if l.Get(s) == "" {
			out = append(out, s)
		}
	}
	return out
}
