package engine

import (
	"fmt"
	"strings"
)

// CyclicDependencyError reports a reference cycle in the declaration set.
// Members holds the addresses of every resource on the cycle.
type CyclicDependencyError struct {
	Members []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle between %s", strings.Join(e.Members, ", "))
}

// UnresolvedReferenceError reports a reference whose target is not part of
// the declaration set. Raised before planning; no partial plan is produced.
type UnresolvedReferenceError struct {
	From   string // referencing resource address
	Target string // missing producer address
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("%s references %s, which is not declared", e.From, e.Target)
}

// DuplicateResourceError reports two declarations sharing one identity.
type DuplicateResourceError struct {
	Addr string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("resource %s is declared more than once", e.Addr)
}

// PlanConflictError reports contradictory ordering constraints between plan
// items. A valid DAG never produces one.
type PlanConflictError struct {
	Detail string
}

func (e *PlanConflictError) Error() string {
	return fmt.Sprintf("conflicting ordering constraints in plan: %s", e.Detail)
}
