// Package broadcast delivers an operator's message to every enforced group
// and/or every registered user.
//
// # Overview
//
// A broadcast starts as a Session owned by one operator. The session walks an
// explicit state machine driven by inline buttons:
//
//	ChoosingTarget --target--> ChoosingPin --pin choice--> Sending --> Done
//	      |                                                   ^
//	      +------------------ users only --------------------+
//
// Sessions expire after a timeout. Starting a new broadcast replaces an
// unfinished selection but never a session that is already sending.
//
// Once the operator confirms, Coordinator.Start resolves the recipient list
// once and Run copies the source message to each recipient in order, paced by
// a token bucket. Group copies may be pinned; a failed pin is logged and does
// not count as a failed delivery. Every recipient ends up either sent or
// failed, so Sent+Failed always equals Total, and the ids of failed
// recipients are kept for the final report.
//
// # Thread Safety
//
// Sessions and Coordinator are safe for concurrent use. A single Job must be
// run by one goroutine.
package broadcast
