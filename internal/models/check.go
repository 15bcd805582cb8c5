package models

// CheckResult is the transient output of a single check module: the raw
// dataset it collected plus the findings derived from it. Issue IDs are
// unassigned until the orchestrator persists them.
type CheckResult struct {
	Data   any     `json:"data"`
	Issues []Issue `json:"issues"`
}
