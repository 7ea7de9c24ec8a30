package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	StatusKind      = "status"
	PerformanceKind = "performance"
)

var (
	kindEndpoints = map[string]string{
		StatusKind:      "status",
		PerformanceKind: "train_performance",
	}
)

// parseAndValidateKindId splits TYPE/ID. Every kind is scoped to a project.
func parseAndValidateKindId(arg string) (string, uuid.UUID, error) {
	kind, rawID, _ := strings.Cut(arg, "/")
	if _, ok := kindEndpoints[kind]; !ok {
		return "", uuid.Nil, fmt.Errorf("invalid resource kind: %s", kind)
	}
	if rawID == "" {
		return "", uuid.Nil, fmt.Errorf("a project id is required: %s/<project id>", kind)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("invalid project id %q: %w", rawID, err)
	}
	return kind, id, nil
}
