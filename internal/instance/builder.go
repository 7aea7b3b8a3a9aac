// Package instance derives per-replica seed, temperature, focus
// label, and instructions text for a requested replica count.
package instance

import "fmt"

// Spec configures one replica of an expert for a single debate run.
type Spec struct {
	ExpertID      string
	InstanceIndex int // 1..N
	ReplicaCount  int // N
	Seed          int64
	Temperature   float64
	FocusLabel    string
	Instructions  string
}

const (
	minTemperature = 0.3
	maxTemperature = 0.9
	tempStep       = 0.15
)

var focusInstructions = map[string]string{
	"conservative": "Favor the safest, most widely-accepted approach. Prefer well-tested patterns over novel ones and call out any risk explicitly.",
	"innovative":   "Favor a creative or unconventional approach. Explore alternatives a conservative answer would not consider, while staying correct.",
	"optimizing":   "Favor the most performant, resource-efficient approach. Justify any trade-off against simplicity.",
}

func alternativeInstructions(k int) string {
	return fmt.Sprintf("Provide alternative approach #%d, distinct from the other instances' approaches.", k)
}

// Build derives replicaCount instance specs for expertID. When
// replicaCount is 1 it returns a single spec with FocusLabel "general"
// and no Instructions; the resulting prompt must stay bit-for-bit
// identical to the legacy single-instance path.
func Build(expertID string, replicaCount int) []Spec {
	if replicaCount < 1 {
		replicaCount = 1
	}

	if replicaCount == 1 {
		return []Spec{{
			ExpertID:      expertID,
			InstanceIndex: 1,
			ReplicaCount:  1,
			Seed:          1000,
			Temperature:   minTemperature,
			FocusLabel:    "general",
			Instructions:  "",
		}}
	}

	specs := make([]Spec, 0, replicaCount)
	for i := 1; i <= replicaCount; i++ {
		temp := minTemperature + float64(i-1)*tempStep
		if temp > maxTemperature {
			temp = maxTemperature
		}

		var focus, instr string
		switch i {
		case 1:
			focus = "conservative"
		case 2:
			focus = "innovative"
		case 3:
			focus = "optimizing"
		default:
			k := i - 3
			focus = fmt.Sprintf("alternative-%d", k)
			instr = alternativeInstructions(k)
		}
		if instr == "" {
			instr = focusInstructions[focus]
		}

		specs = append(specs, Spec{
			ExpertID:      expertID,
			InstanceIndex: i,
			ReplicaCount:  replicaCount,
			Seed:          int64(i) * 1000,
			Temperature:   temp,
			FocusLabel:    focus,
			Instructions:  instr,
		})
	}
	return specs
}
