package mqtt

import "strings"

func join(prefix string, parts ...string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "matrix"
	}
	return prefix + "/" + strings.Join(parts, "/")
}

func statusTopic(prefix string) string {
	return join(prefix, "status")
}

// TransmissionTopic is where finished runs are published, split by outcome,
// e.g. matrix/transmissions/failed.
func TransmissionTopic(prefix string, success bool) string {
	outcome := "succeeded"
	if !success {
		outcome = "failed"
	}
	return join(prefix, "transmissions", outcome)
}
