package engine

import (
	"fmt"
	"strings"

	"github.com/DoyleJ11/hackathon-judging/internal/config"
)

const (
	glyphJudged  = "✅"
	glyphCurrent = "⚖️"
)

// RenderStatus renders q as markdown. With room set only that room is shown.
// The public view drops room ids, cursor values and skip history.
func RenderStatus(q Queue, rooms []config.Room, room string, public bool) string {
	var b strings.Builder
	b.WriteString("# Judging\n")
	if public {
		fmt.Fprintf(&b, "The team indicated by %s is the current team being judged (if any). If you are one of the next few teams, please report to the front desk (in-person members) or your team voice channel (online members) in advance.\n\n", glyphCurrent)
	} else {
		fmt.Fprintf(&b, "The team indicated by %s is the current team being judged (if any). The team after it is the team that will be pinged when `ping <room_id>` is run.\n\n", glyphCurrent)
	}

	for _, id := range roomOrder(q, rooms) {
		if room != "" && id != room {
			continue
		}
		rq := q[id]
		name := id
		if r, ok := lookupRoom(rooms, id); ok && r.DisplayName != "" {
			name = r.DisplayName
		}

		if public {
			fmt.Fprintf(&b, "## %s `[%s]`\n", name, rq.Phase())
		} else {
			fmt.Fprintf(&b, "## %s\n`[id = %s | %s | current = %d]`\n", name, id, rq.Phase(), rq.Current())
		}

		cur := rq.Current()
		for i, team := range rq.Teams {
			line := fmt.Sprintf("- `%s`", team)
			if !public && rq.Skipped[team] > 0 {
				line += fmt.Sprintf(" (skipped x%d)", rq.Skipped[team])
			}
			switch {
			case i < cur:
				line += " " + glyphJudged
			case i == cur:
				line += " " + glyphCurrent
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

// roomOrder lists q's rooms in configuration order, then any unconfigured
// leftovers sorted.
func roomOrder(q Queue, rooms []config.Room) []string {
	order := make([]string, 0, len(q))
	seen := map[string]bool{}
	for _, r := range rooms {
		if _, ok := q[r.ID]; ok {
			order = append(order, r.ID)
			seen[r.ID] = true
		}
	}
	for _, id := range sortedKeys(q) {
		if !seen[id] {
			order = append(order, id)
		}
	}
	return order
}

func lookupRoom(rooms []config.Room, id string) (config.Room, bool) {
	for _, r := range rooms {
		if r.ID == id {
			return r, true
		}
	}
	return config.Room{}, false
}
