package scoring

import (
	"fmt"

	"family-safety-score/internal/models"
)

// FallbackSummary is reported when a pass could not reach its collaborators.
const FallbackSummary = "No new risks detected. Your score is unchanged."

func summarize(previous, current, remediated int, open []models.ThreatEvent) string {
	if remediated > 0 {
		return fmt.Sprintf("We handled %d %s for you automatically. No action needed.",
			remediated, plural(remediated, "issue", "issues"))
	}
	if len(open) == 0 {
		return "No threats detected. Your family is protected and no action is needed."
	}

	critical := countSeverity(open, models.SeverityCritical)
	switch {
	case current > previous:
		return fmt.Sprintf("Your security score improved by %d %s.", current-previous, plural(current-previous, "point", "points"))
	case current < previous && critical > 0:
		return fmt.Sprintf("Your security score dropped by %d %s. %d critical %s %s your attention.",
			previous-current, plural(previous-current, "point", "points"),
			critical, plural(critical, "issue", "issues"), plural(critical, "needs", "need"))
	case current < previous:
		return fmt.Sprintf("Your security score dropped by %d %s. Review the recommendations below.",
			previous-current, plural(previous-current, "point", "points"))
	default:
		return "Your security score is stable."
	}
}

func countSeverity(threats []models.ThreatEvent, s models.Severity) int {
	n := 0
	for _, t := range threats {
		if t.Severity == s {
			n++
		}
	}
	return n
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
