package metrics

import "expvar"

var (
	Deposits            = expvar.NewInt("deposits")
	WithdrawalRequests  = expvar.NewInt("withdrawal_requests")
	WithdrawalsExecuted = expvar.NewInt("withdrawals_executed")
	OracleErrors        = expvar.NewInt("oracle_errors")
	VenueShortfalls     = expvar.NewInt("venue_shortfalls")
	FeeWithdrawals      = expvar.NewInt("fee_withdrawals")
	ProfitWithdrawals   = expvar.NewInt("profit_withdrawals")
)
