package evaluation

import "strings"

// TrajectoryScore compares tool call sequences position by position. The
// score is the number of positions that agree divided by the longer length;
// two empty trajectories score 1.
func TrajectoryScore(expected, actual []string) float64 {
	longest := max(len(expected), len(actual))
	if longest == 0 {
		return 1
	}

	same := 0
	for i := range min(len(expected), len(actual)) {
		if expected[i] == actual[i] {
			same++
		}
	}

	return float64(same) / float64(longest)
}

// ResponseMatches reports whether response contains expected, ignoring case
// and surrounding whitespace. An empty expectation always matches.
func ResponseMatches(expected, response string) bool {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return true
	}
	return strings.Contains(strings.ToLower(response), strings.ToLower(expected))
}
