package selector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/expertregistry"
)

// ParseDirectSpec parses a string of the form "a:2,b,c:3" into
// (id,count) pairs. Unknown ids are dropped with a warning rather than
// rejecting the whole spec.
func ParseDirectSpec(spec string, reg *expertregistry.Registry) ([]domain.ExpertReplicaPlanEntry, []string) {
	var entries []domain.ExpertReplicaPlanEntry
	var warnings []string

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id := part
		count := 1
		if idx := strings.Index(part, ":"); idx >= 0 {
			id = strings.TrimSpace(part[:idx])
			countStr := strings.TrimSpace(part[idx+1:])
			n, err := strconv.Atoi(countStr)
			if err != nil || n < 1 {
				warnings = append(warnings, fmt.Sprintf("invalid replica count %q for expert %q, using 1", countStr, id))
				n = 1
			}
			count = n
		}

		if _, ok := reg.Get(id); !ok {
			warnings = append(warnings, fmt.Sprintf("unknown expert id %q dropped from spec", id))
			continue
		}

		entries = append(entries, domain.ExpertReplicaPlanEntry{ExpertID: id, ReplicaCount: count})
	}

	return entries, warnings
}
