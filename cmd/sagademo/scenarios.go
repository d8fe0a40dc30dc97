package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/approval"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/ordering"
)

const awaitTimeout = 30 * time.Second

type outcome struct {
	Name    string
	Summary string
	Err     error
}

type scenario struct {
	name string
	run  func(ctx context.Context, env *environment) (string, error)
}

func scenarios() []scenario {
	return []scenario{
		{"small order is auto-approved", smallOrder},
		{"insufficient stock rolls back", insufficientStock},
		{"insufficient funds rolls back", insufficientFunds},
		{"large order escalates to manager", largeOrder},
		{"supervisor rejects", supervisorRejects},
	}
}

func runScenarios(ctx context.Context, env *environment) []outcome {
	var outcomes []outcome
	for _, s := range scenarios() {
		summary, err := s.run(ctx, env)
		outcomes = append(outcomes, outcome{Name: s.name, Summary: summary, Err: err})
	}
	return outcomes
}

func orderRequest(user string, quantity int, amount float64) ordering.Request {
	return ordering.Request{
		UserID:    user,
		ProductID: demoProduct,
		Quantity:  quantity,
		Amount:    amount,
		TenantID:  demoTenant,
	}
}

func describe(result ordering.Result) string {
	return fmt.Sprintf("%s: %s", result.Status, result.Message)
}

func submitCompleted(ctx context.Context, env *environment, req ordering.Request) (string, error) {
	result, err := env.app.SubmitOrder(ctx, req)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", errors.Errorf("order saga did not complete: %s", describe(result))
	}
	return result.OrderID.Unwrap(), nil
}

func awaitApprover(ctx context.Context, env *environment, workflowID string, role approval.Role) error {
	deadline := time.Now().Add(awaitTimeout)
	for time.Now().Before(deadline) {
		status, err := env.app.GetApprovalStatus(ctx, workflowID)
		if err == nil && status.CurrentApprover.IsSome() && status.CurrentApprover.Unwrap() == role {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return errors.Errorf("workflow %s never waited for %s", workflowID, role)
}

func decide(ctx context.Context, env *environment, workflowID string, role approval.Role, decision approval.Decision) error {
	if err := awaitApprover(ctx, env, workflowID, role); err != nil {
		return err
	}
	return env.app.SubmitDecision(ctx, workflowID, decision)
}

func finalState(ctx context.Context, env *environment, workflowID string) (string, error) {
	state, err := env.app.AwaitApprovalResult(ctx, workflowID, awaitTimeout)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("order %s %s by %s", state.OrderID, state.Status, state.DecidedBy), nil
}

func smallOrder(ctx context.Context, env *environment) (string, error) {
	orderID, err := submitCompleted(ctx, env, orderRequest(demoUser, 1, 50))
	if err != nil {
		return "", err
	}
	return finalState(ctx, env, orderID)
}

func insufficientStock(ctx context.Context, env *environment) (string, error) {
	result, err := env.app.SubmitOrder(ctx, orderRequest(demoUser, 1000, 50))
	return describe(result), err
}

func insufficientFunds(ctx context.Context, env *environment) (string, error) {
	result, err := env.app.SubmitOrder(ctx, orderRequest(poorUser, 1, 500))
	return describe(result), err
}

func largeOrder(ctx context.Context, env *environment) (string, error) {
	orderID, err := submitCompleted(ctx, env, orderRequest(demoUser, 2, 1500))
	if err != nil {
		return "", err
	}
	if err := decide(ctx, env, orderID, approval.RoleSupervisor, approval.Decision{ApproverID: "sup-ann", Approved: true}); err != nil {
		return "", err
	}
	if err := decide(ctx, env, orderID, approval.RoleManager, approval.Decision{ApproverID: "mgr-joe", Approved: true, Comment: "within budget"}); err != nil {
		return "", err
	}
	return finalState(ctx, env, orderID)
}

func supervisorRejects(ctx context.Context, env *environment) (string, error) {
	orderID, err := submitCompleted(ctx, env, orderRequest(demoUser, 1, 500))
	if err != nil {
		return "", err
	}
	if err := decide(ctx, env, orderID, approval.RoleSupervisor, approval.Decision{ApproverID: "sup-ann", Approved: false, Comment: "not needed"}); err != nil {
		return "", err
	}
	return finalState(ctx, env, orderID)
}
