// ./internal/state/audit_store.go
package state

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/marginmesh/riskcore/internal/types"
)

// SaveEvaluation records one valuation + classification result.
func SaveEvaluation(snapshot types.PortfolioSnapshot, riskState types.RiskState) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO evaluations (
			account, collateral, discounted_collateral, debt, net,
			risk_state, saturated, as_of
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err := DB.Exec(
		query,
		string(snapshot.Account),
		snapshot.Collateral.String(), snapshot.DiscountedCollateral.String(),
		snapshot.Debt.String(), snapshot.Net.String(),
		string(riskState), snapshot.Saturated, snapshot.AsOf,
	)
	if err != nil {
		return fmt.Errorf("failed to save evaluation: %w", err)
	}
	return nil
}

// SaveBailoutEvent records one executed pool operation.
func SaveBailoutEvent(event types.BailoutEvent) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO bailout_events (
			event_id, account, kind, net_value, shares_delta,
			value_per_share_before, value_per_share_after, event_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err := DB.Exec(
		query,
		event.EventID, string(event.Account), event.Kind,
		event.NetValue.String(), event.SharesDelta.String(),
		event.ValuePerShareBefore.String(), event.ValuePerShareAfter.String(),
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save bailout event: %w", err)
	}

	log.Info().
		Str("event_id", event.EventID).
		Str("kind", event.Kind).
		Str("account", string(event.Account)).
		Msg("Bailout event saved to database")
	return nil
}

// SaveRateSample records one derived rate for one asset.
func SaveRateSample(asset types.AssetID, utilization, rate sdkmath.LegacyDec, sampledAt time.Time) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO rate_samples (asset, utilization, borrow_rate, sampled_at)
		VALUES ($1, $2, $3, $4);
	`
	if _, err := DB.Exec(query, string(asset), utilization.String(), rate.String(), sampledAt); err != nil {
		return fmt.Errorf("failed to save rate sample: %w", err)
	}
	return nil
}

// SaveCycleReport records one maintenance pass summary.
func SaveCycleReport(report types.CycleReport) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO cycle_reports (
			cycle_id, started_at, duration_seconds,
			accounts_evaluated, evaluation_errors, margin_calls,
			bailouts_executed, halted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err := DB.Exec(
		query,
		report.CycleID, report.StartedAt, report.Duration,
		report.AccountsEvaluated, report.EvaluationErrors, report.MarginCalls,
		report.BailoutsExecuted, report.Halted,
	)
	if err != nil {
		return fmt.Errorf("failed to save cycle report: %w", err)
	}
	return nil
}

// RecentCycleReports returns the latest maintenance pass summaries.
func RecentCycleReports(limit int) ([]types.CycleReport, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT cycle_id, started_at, duration_seconds,
			accounts_evaluated, evaluation_errors, margin_calls,
			bailouts_executed, halted
		FROM cycle_reports
		ORDER BY started_at DESC
		LIMIT $1;
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle reports: %w", err)
	}
	defer rows.Close()

	var reports []types.CycleReport
	for rows.Next() {
		var r types.CycleReport
		if err := rows.Scan(
			&r.CycleID, &r.StartedAt, &r.Duration,
			&r.AccountsEvaluated, &r.EvaluationErrors, &r.MarginCalls,
			&r.BailoutsExecuted, &r.Halted,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cycle report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// RecentBailoutEvents returns the latest pool operations for one account, or
// all accounts when account is empty.
func RecentBailoutEvents(account types.AccountID, limit int) ([]types.BailoutEvent, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT event_id, account, kind, net_value, shares_delta,
			value_per_share_before, value_per_share_after, event_timestamp
		FROM bailout_events
		WHERE ($1 = '' OR account = $1)
		ORDER BY event_timestamp DESC
		LIMIT $2;
	`
	rows, err := DB.Query(query, string(account), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bailout events: %w", err)
	}
	defer rows.Close()

	var events []types.BailoutEvent
	for rows.Next() {
		var (
			e                                 types.BailoutEvent
			acct                              string
			netValue, sharesDelta, vpsB, vpsA string
		)
		if err := rows.Scan(&e.EventID, &acct, &e.Kind, &netValue, &sharesDelta, &vpsB, &vpsA, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan bailout event: %w", err)
		}
		e.Account = types.AccountID(acct)
		if e.NetValue, err = sdkmath.LegacyNewDecFromStr(netValue); err != nil {
			return nil, fmt.Errorf("failed to parse net_value: %w", err)
		}
		if e.SharesDelta, err = sdkmath.LegacyNewDecFromStr(sharesDelta); err != nil {
			return nil, fmt.Errorf("failed to parse shares_delta: %w", err)
		}
		if e.ValuePerShareBefore, err = sdkmath.LegacyNewDecFromStr(vpsB); err != nil {
			return nil, fmt.Errorf("failed to parse value_per_share_before: %w", err)
		}
		if e.ValuePerShareAfter, err = sdkmath.LegacyNewDecFromStr(vpsA); err != nil {
			return nil, fmt.Errorf("failed to parse value_per_share_after: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
