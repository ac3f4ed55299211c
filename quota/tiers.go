package quota

// Tier maps a document-completion credit score band onto monthly campaign
// slots. Bands are selected by the highest MinScore not exceeding the score.
type Tier struct {
	MinScore  int
	FreeSlots int
	PaidSlots int
}

// Tier table, highest band first. Free slots are monotonically non-decreasing
// in the score; low bands trade free slots for purchasable ones.
var tiers = []Tier{
	{MinScore: 80, FreeSlots: 5, PaidSlots: 0},
	{MinScore: 75, FreeSlots: 3, PaidSlots: 0},
	{MinScore: 65, FreeSlots: 1, PaidSlots: 0},
	{MinScore: 50, FreeSlots: 0, PaidSlots: 3},
	{MinScore: 35, FreeSlots: 0, PaidSlots: 2},
	{MinScore: 20, FreeSlots: 0, PaidSlots: 1},
	{MinScore: 0, FreeSlots: 0, PaidSlots: 0},
}

// tierFor returns the band containing score.
func tierFor(score int) Tier {
	for _, tier := range tiers {
		if score >= tier.MinScore {
			return tier
		}
	}
	return tiers[len(tiers)-1]
}

// nextTier returns the lowest band above score that grants more free slots,
// if one exists.
func nextTier(score int) (Tier, bool) {
	current := tierFor(score)
	var found Tier
	ok := false
	for _, tier := range tiers {
		if tier.MinScore > score && tier.FreeSlots > current.FreeSlots {
			found = tier
			ok = true
		}
	}
	return found, ok
}
