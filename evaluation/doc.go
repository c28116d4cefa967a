// Package evaluation scores an agent tree against a set of scripted cases:
// the tool trajectory the agents took and whether the final response
// contains the expected answer. Sets can be written in YAML and loaded with
// LoadSet.
package evaluation
