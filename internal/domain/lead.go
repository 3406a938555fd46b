package domain

// Slot names one field of lead information.
type Slot string

const (
	SlotService        Slot = "service"
	SlotTimeline       Slot = "timeline"
	SlotBudget         Slot = "budget"
	SlotBrandName      Slot = "brandName"
	SlotStyle          Slot = "style"
	SlotContactName    Slot = "contactName"
	SlotContactChannel Slot = "contactChannel"
	SlotReferences     Slot = "references"
)

// Valid reports whether s names a known slot.
func (s Slot) Valid() bool {
	return (&Lead{}).field(s) != nil
}

// Lead is the structured information gathered from one sender.
type Lead struct {
	Service        string `json:"service,omitempty"`
	Timeline       string `json:"timeline,omitempty"`
	Budget         string `json:"budget,omitempty"`
	BrandName      string `json:"brandName,omitempty"`
	Style          string `json:"style,omitempty"`
	ContactName    string `json:"contactName,omitempty"`
	ContactChannel string `json:"contactChannel,omitempty"`
	References     string `json:"references,omitempty"`
}

// Get returns the value of slot s, or "" for an unknown slot.
func (l Lead) Get(s Slot) string {
	if p := l.field(s); p != nil {
		return *p
	}
	return ""
}

// With returns a copy of l with slot s set to v. Unknown slots are ignored.
func (l Lead) With(s Slot, v string) Lead {
	if p := l.field(s); p != nil {
		*p = v
	}
	return l
}

// Empty reports whether no slot is filled.
func (l Lead) Empty() bool {
	return l == Lead{}
}

func (l *Lead) field(s Slot) *string {
	switch s {
	case SlotService:
		return &l.Service
	case SlotTimeline:
		return &l.Timeline
	case SlotBudget:
		return &l.Budget
	case SlotBrandName:
		return &l.BrandName
	case SlotStyle:
		return &l.Style
	case SlotContactName:
		return &l.ContactName
	case SlotContactChannel:
		return &l.ContactChannel
	case SlotReferences:
		return &l.References
	}
	return nil
}
