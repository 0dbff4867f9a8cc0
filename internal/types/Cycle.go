/*

This file contains the maintenance cycle report persisted after every sweep
over all accounts.

*/

package types

import "time"

// CycleReport summarizes one maintenance pass: the periodic evaluation of
// every account, the bailouts executed against the updated pool state, and
// the rate refresh plus accrual step that followed.
type CycleReport struct {
	CycleID   string    `json:"cycle_id"`
	StartedAt time.Time `json:"started_at"`
	Duration  float64   `json:"duration_seconds"`

	AccountsEvaluated int `json:"accounts_evaluated"`
	EvaluationErrors  int `json:"evaluation_errors"`
	MarginCalls       int `json:"margin_calls"`
	BailoutsExecuted  int `json:"bailouts_executed"`

	Halted bool `json:"halted"`
}
