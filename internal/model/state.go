// internal/model/state.go
package model

// TestState represents the workflow state of the station
type TestState string

const (
	StateIdle             TestState = "IDLE"
	StateConnecting       TestState = "CONNECTING"
	StateScanning         TestState = "SCANNING"
	StateFetching         TestState = "FETCHING"
	StateConnectingCables TestState = "CONNECTING_CABLES"
	StateSuccess          TestState = "SUCCESS"
	StateFailure          TestState = "FAILURE"
)

// CaseResult represents the tri-state outcome of a checklist entry
type CaseResult string

const (
	CaseIdle    CaseResult = "IDLE"
	CaseSuccess CaseResult = "SUCCESS"
	CaseFailure CaseResult = "FAILURE"
)

// CaseKey identifies a checklist entry
type CaseKey string

const (
	CaseConnectUART CaseKey = "connect_uart"
	CaseScanCodes   CaseKey = "scan_codes"
	CaseFetchRecord CaseKey = "fetch_record"
	CaseVerifyMACs  CaseKey = "verify_macs"
)

// TestCase is a single entry of the operator-visible checklist
type TestCase struct {
	Key         CaseKey    `json:"key"`
	Description string     `json:"description"`
	Result      CaseResult `json:"result"`
}

// DefaultTestCases returns the checklist in display order, all idle
func DefaultTestCases() []TestCase {
	return []TestCase{
		{Key: CaseConnectUART, Description: "UART: initial connection", Result: CaseIdle},
		{Key: CaseScanCodes, Description: "SCAN: both data matrix codes scanned", Result: CaseIdle},
		{Key: CaseFetchRecord, Description: "SERVER: serial and MAC addresses received", Result: CaseIdle},
		{Key: CaseVerifyMACs, Description: "CABLES: expected MAC addresses seen on UART", Result: CaseIdle},
	}
}

// Snapshot is the workflow state published to the operator panel.
// It is a pure function of the transition history.
type Snapshot struct {
	RunID        string     `json:"run_id,omitempty"`
	State        TestState  `json:"state"`
	Status       string     `json:"status"`
	Codes        []string   `json:"codes"`
	Cases        []TestCase `json:"cases"`
	StartEnabled bool       `json:"start_enabled"`
	ResetEnabled bool       `json:"reset_enabled"`
}
