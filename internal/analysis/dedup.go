package analysis

import (
	"sort"
	"strings"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// DuplicateSimilarity is the title similarity above which two threats of the
// same category and components are treated as one.
const DuplicateSimilarity = 0.7

// TitleSimilarity is the Jaccard index of the lowercased, whitespace
// separated words of a and b.
func TitleSimilarity(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

// IsDuplicate reports whether b restates a.
func IsDuplicate(a, b tm.IdentifiedThreat) bool {
	return a.Category == b.Category &&
		sameSet(a.AffectedComponents, b.AffectedComponents) &&
		TitleSimilarity(a.Title, b.Title) > DuplicateSimilarity
}

func sameSet(a, b []string) bool {
	sa, sb := uniqueSorted(a), uniqueSorted(b)
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func uniqueSorted(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Deduplicate folds duplicates into the first threat seen. The survivor
// keeps the higher confidence and, when the duplicate scored higher, its
// risk score, severity and DREAD breakdown. Order is otherwise preserved.
func Deduplicate(threats []tm.IdentifiedThreat) []tm.IdentifiedThreat {
	out := make([]tm.IdentifiedThreat, 0, len(threats))
	for _, t := range threats {
		if i := indexOfDuplicate(out, t); i >= 0 {
			merge(&out[i], t)
			continue
		}
		out = append(out, t)
	}
	return out
}

func indexOfDuplicate(threats []tm.IdentifiedThreat, t tm.IdentifiedThreat) int {
	for i := range threats {
		if IsDuplicate(threats[i], t) {
			return i
		}
	}
	return -1
}

func merge(kept *tm.IdentifiedThreat, dup tm.IdentifiedThreat) {
	if dup.Confidence > kept.Confidence {
		kept.Confidence = dup.Confidence
	}
	if dup.RiskScore > kept.RiskScore {
		kept.RiskScore = dup.RiskScore
		kept.Severity = dup.Severity
		if dup.Dread != nil {
			d := *dup.Dread
			kept.Dread = &d
		}
	}
}
