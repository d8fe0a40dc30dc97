package approval

import (
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultAutoApproveThreshold = 100.0
	DefaultManagerThreshold     = 1000.0
	DefaultDecisionTimeout      = 24 * time.Hour
)

// Policy decides who has to approve a request and how long each level waits.
type Policy struct {
	AutoApproveThreshold float64
	ManagerThreshold     float64
	DecisionTimeout      time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		AutoApproveThreshold: DefaultAutoApproveThreshold,
		ManagerThreshold:     DefaultManagerThreshold,
		DecisionTimeout:      DefaultDecisionTimeout,
	}
}

func (p Policy) Validate() error {
	if p.DecisionTimeout <= 0 {
		return errors.Errorf("decision timeout must be positive, got %s", p.DecisionTimeout)
	}
	if p.ManagerThreshold < p.AutoApproveThreshold {
		return errors.Errorf("manager threshold %.2f is below auto-approve threshold %.2f",
			p.ManagerThreshold, p.AutoApproveThreshold)
	}
	return nil
}

// IsAutoApproved reports whether amount bypasses escalation entirely.
func (p Policy) IsAutoApproved(amount float64) bool {
	return amount < p.AutoApproveThreshold
}

// Chain returns the approver roles for amount, lowest authority first.
func (p Policy) Chain(amount float64) []Role {
	chain := []Role{RoleSupervisor}
	if amount >= p.ManagerThreshold {
		chain = append(chain, RoleManager)
	}
	return chain
}
