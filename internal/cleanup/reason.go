package cleanup

import "releng-kit/internal/rules"

// Reason labels why an entry was removed. It is stored with each history row.
type Reason string

const (
	ReasonNotPreserved   Reason = "not_preserved"
	ReasonMatchedRemove  Reason = "matched_remove_rule"
	ReasonEmptyDirectory Reason = "empty_directory"
)

// decide applies the per-entry deletion rule of a mode. Real directories are
// never removed here; they are left to pruning.
func decide(mode rules.Mode, set rules.Set, e rules.Entry) (Reason, bool) {
	switch mode {
	case rules.Preserve:
		if set.Contains(e.Path) || e.IsDir() {
			return "", false
		}
		return ReasonNotPreserved, true
	case rules.Remove:
		if e.IsDir() || !set.Contains(e.Path) {
			return "", false
		}
		return ReasonMatchedRemove, true
	default:
		return "", false
	}
}
