package deps

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external binary used by a preview or export backend.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the result of looking up one Requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	// Path is the resolved executable when Available.
	Path   string
	Detail string
}

// CheckBinaries resolves every requirement on PATH, preserving order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		results[i] = req.check()
	}
	return results
}

func (r Requirement) check() Status {
	status := Status{
		Name:        r.Name,
		Command:     strings.TrimSpace(r.Command),
		Description: strings.TrimSpace(r.Description),
		Optional:    r.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(status.Command)
	switch {
	case err == nil:
		status.Available = true
		status.Path = path
	case errors.Is(err, exec.ErrNotFound):
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
	default:
		status.Detail = fmt.Sprintf("binary %q unusable: %v", status.Command, err)
	}
	return status
}
