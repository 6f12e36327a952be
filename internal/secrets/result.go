package secrets

// Result is the outcome of scrubbing one piece of content.
type Result struct {
	Scrubbed string         `json:"scrubbed"`
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
}

// Finding records where a secret was found. The secret itself is not kept.
type Finding struct {
	RuleID string `json:"rule_id"`
	Line   int    `json:"line"`
}

// TotalFindings returns the number of findings.
func (r *Result) TotalFindings() int {
	return len(r.Findings)
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}

func (r *Result) add(ruleID string, line int) {
	r.Findings = append(r.Findings, Finding{RuleID: ruleID, Line: line})
	if r.ByRule == nil {
		r.ByRule = make(map[string]int)
	}
	r.ByRule[ruleID]++
}
