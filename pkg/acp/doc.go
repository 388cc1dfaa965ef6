// Package acp is a client for bearer-authenticated checkout-session merchants.
//
// The merchant owns every checkout session and its status. The client mirrors
// the last status it saw per session and refuses actions the state machine
// forbids before sending them:
//
//	(none)                -> create   -> not_ready_for_payment | ready_for_payment
//	not_ready_for_payment -> update   -> ready_for_payment (with shipping)
//	ready_for_payment     -> complete -> completed | not_ready_for_payment (declined)
//	open                  -> cancel   -> canceled
//
// completed and canceled are terminal. Money is always an Amount in minor units
// paired with an ISO currency code.
package acp
