package coach

import (
	"fmt"
	"strings"

	"github.com/peakform/coachcore/core"
)

const basePrompt = `You are a personal fitness and wellness coach. Ground every
answer in the client signals below when they are relevant. Use the available
functions for any side effect (logging meals, adjusting goals, querying
history) instead of claiming to have done it. Keep responses short and
actionable.`

// buildSystemPrompt composes the system prompt from the persona fragment and
// the assembled context snapshot. Output is deterministic for a given input
// so prompt-level tests stay stable.
func buildSystemPrompt(personaFragment string, snap core.HealthContextSnapshot, scheduled bool) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n")
	b.WriteString(personaFragment)
	b.WriteString("\n\n")
	b.WriteString(renderSnapshot(snap))
	if scheduled {
		b.WriteString("\n\nThis turn was initiated by a scheduled check-in, not a live message. Open proactively.")
	}
	return b.String()
}

func renderSnapshot(snap core.HealthContextSnapshot) string {
	lines := []string{"Current client signals:"}

	appendNum := func(label string, v *float64, unit string) {
		if v != nil {
			lines = append(lines, fmt.Sprintf("- %s: %.1f%s", label, *v, unit))
		}
	}
	appendNum("sleep", snap.SleepHours, "h")
	appendNum("resting heart rate", snap.RestingHR, " bpm")
	appendNum("steps", snap.Steps, "")
	appendNum("weight", snap.WeightKg, " kg")
	appendNum("active energy", snap.ActiveEnergy, " kcal")
	if snap.Weather != "" {
		lines = append(lines, "- weather: "+snap.Weather)
	}

	if len(lines) == 1 {
		return "No client signals are available right now; coach from the conversation alone."
	}
	if len(snap.Missing) > 0 {
		missing := make([]string, 0, len(snap.Missing))
		for _, m := range snap.Missing {
			missing = append(missing, string(m))
		}
		lines = append(lines, "Unavailable signals (do not guess): "+strings.Join(missing, ", "))
	}
	return strings.Join(lines, "\n")
}
