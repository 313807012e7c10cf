package tasks

import (
	"pix_checkout_echo/internal/checkout"
)

// Dependencies are the collaborators task handlers need.
type Dependencies struct {
	Gateway checkout.Gateway
	Ledger  CancellationLedger
}

// DefineTasks registers every task the worker can run.
func DefineTasks(r *Registry, deps Dependencies) {
	cancel := NewCancelPaymentTask(deps.Gateway, deps.Ledger)
	r.Register(cancel.TaskID(), cancel.HandleExecution)
}
