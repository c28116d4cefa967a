package evaluation

import "time"

// Set is a named collection of cases.
type Set struct {
	Name  string `yaml:"name" json:"name"`
	Cases []Case `yaml:"cases" json:"cases"`
}

// Case is one user input with the expected behavior.
type Case struct {
	ID    string `yaml:"id" json:"id"`
	Input string `yaml:"input" json:"input"`
	// ExpectedTools is the ordered list of tool names the agents should call.
	ExpectedTools []string `yaml:"expected_tools" json:"expected_tools,omitempty"`
	// ExpectedResponse must appear in the final response (case-insensitive).
	ExpectedResponse string `yaml:"expected_response" json:"expected_response,omitempty"`
}

// CaseResult records how one case went.
type CaseResult struct {
	CaseID        string        `json:"case_id"`
	SessionID     string        `json:"session_id"`
	Agent         string        `json:"agent"`
	Tools         []string      `json:"tools"`
	Response      string        `json:"response"`
	ToolScore     float64       `json:"tool_score"`
	ResponseMatch bool          `json:"response_match"`
	Passed        bool          `json:"passed"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Summary aggregates results across cases.
type Summary struct {
	Cases             int     `json:"cases"`
	Passed            int     `json:"passed"`
	AvgToolScore      float64 `json:"avg_tool_score"`
	ResponseMatchRate float64 `json:"response_match_rate"`
}

// PassRate is the fraction of passed cases.
func (s Summary) PassRate() float64 {
	if s.Cases == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Cases)
}

// Report is the outcome of an evaluation run.
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	SetName     string       `json:"set_name"`
	Summary     Summary      `json:"summary"`
	Cases       []CaseResult `json:"cases"`
}

func summarize(cases []CaseResult) Summary {
	s := Summary{Cases: len(cases)}
	if s.Cases == 0 {
		return s
	}

	matched := 0
	for _, c := range cases {
		s.AvgToolScore += c.ToolScore
		if c.ResponseMatch {
			matched++
		}
		if c.Passed {
			s.Passed++
		}
	}
	s.AvgToolScore /= float64(s.Cases)
	s.ResponseMatchRate = float64(matched) / float64(s.Cases)

	return s
}
