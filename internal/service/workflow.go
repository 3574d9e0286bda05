// internal/service/workflow.go
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"boardtester/internal/config"
	"boardtester/internal/model"
)

// Operator-facing status lines. The panel shows exactly one at a time.
const (
	statusReady          = "Plug in the UART cable and press Start"
	statusConnecting     = "Connecting to UART"
	statusUARTFailed     = "Connection to UART failed"
	statusScanTop        = "Scan the TOP data matrix code"
	statusScanBottom     = "Scan the BOTTOM data matrix code"
	statusScanInvalid    = "Scanned code rejected, test aborted"
	statusFetching       = "Fetching serial and MACs"
	statusServerFailed   = "Code server request failed"
	statusConnectCables  = "Connect the remaining cables"
	statusMACMismatch    = "Board reported an unexpected MAC address"
	statusCableTimedOut  = "Timed out waiting for MAC addresses on UART"
	statusAllTestsPassed = "All tests successful"
)

// Notifier is the callback contract between the workflow and the
// operator UI. StateChanged runs on the workflow loop goroutine and
// must not block.
type Notifier interface {
	StateChanged(snapshot model.Snapshot)
}

type commandType int

const (
	cmdStart commandType = iota
	cmdReset
	cmdKey
)

type command struct {
	typ        commandType
	text       string
	terminator bool
}

// Workflow sequences the test procedure: reset, connect to UART, scan
// both codes, fetch the expected record, verify the MACs the board
// reports while cables are connected. It is the exclusive owner of
// the three I/O services and of all checklist and record state.
//
// All state lives on the Run loop goroutine. External callers talk to
// the loop through the command channel; services post generation
// tagged events. An event whose generation does not match the current
// run is discarded, which is what makes Reset safe against callbacks
// still in flight.
type Workflow struct {
	cfg      *config.Config
	logger   *zap.Logger
	serial   *SerialService
	scanner  *ScannerService
	server   *CodeClient
	notifier Notifier

	commands chan command
	events   chan model.Event

	// Loop-owned state
	generation  uint64
	runID       string
	state       model.TestState
	status      string
	scan        model.ScanResult
	record      *model.ServerRecord
	observed    map[string]bool
	cases       []model.TestCase
	cableTimer  *time.Timer
	fetchCancel context.CancelFunc

	snapMutex    sync.RWMutex
	lastSnapshot model.Snapshot
}

// NewWorkflow creates the workflow state machine
func NewWorkflow(
	cfg *config.Config,
	serial *SerialService,
	scanner *ScannerService,
	server *CodeClient,
	notifier Notifier,
	logger *zap.Logger,
) *Workflow {
	w := &Workflow{
		cfg:      cfg,
		logger:   logger.With(zap.String("service", "workflow")),
		serial:   serial,
		scanner:  scanner,
		server:   server,
		notifier: notifier,
		commands: make(chan command, 64),
		events:   make(chan model.Event, 128),
		state:    model.StateIdle,
		status:   statusReady,
		cases:    model.DefaultTestCases(),
	}
	w.publish()
	return w
}

// Run consumes commands and events until the context is canceled.
// Everything the workflow mutates is touched only from this loop.
func (w *Workflow) Run(ctx context.Context) {
	w.logger.Info("Workflow loop started")

	for {
		select {
		case <-ctx.Done():
			w.teardown()
			w.logger.Info("Workflow loop stopped")
			return
		case cmd := <-w.commands:
			w.handleCommand(cmd)
		case event := <-w.events:
			if event.Generation != w.generation {
				w.logger.Debug("Discarding stale event",
					zap.String("event_type", string(event.Type)),
					zap.Uint64("event_generation", event.Generation),
					zap.Uint64("current_generation", w.generation),
				)
				continue
			}
			w.handleEvent(event)
		}
	}
}

// Start begins a test run. Ignored unless the station is idle.
func (w *Workflow) Start() {
	w.enqueue(command{typ: cmdStart})
}

// Reset returns to idle from any state, canceling in-flight work
func (w *Workflow) Reset() {
	w.enqueue(command{typ: cmdReset})
}

// KeyPressed routes one operator key press into the workflow. Keys
// reach the scanner only while scanning; everywhere else they are
// dropped at this boundary.
func (w *Workflow) KeyPressed(text string, terminator bool) {
	w.enqueue(command{typ: cmdKey, text: text, terminator: terminator})
}

// CurrentSnapshot returns the last published snapshot. Safe from any
// goroutine.
func (w *Workflow) CurrentSnapshot() model.Snapshot {
	w.snapMutex.RLock()
	defer w.snapMutex.RUnlock()
	return w.lastSnapshot
}

func (w *Workflow) enqueue(cmd command) {
	select {
	case w.commands <- cmd:
	default:
		w.logger.Warn("Command channel full, dropping command")
	}
}

func (w *Workflow) handleCommand(cmd command) {
	switch cmd.typ {
	case cmdStart:
		w.handleStart()
	case cmdReset:
		w.handleReset()
	case cmdKey:
		w.handleKey(cmd.text, cmd.terminator)
	}
}

func (w *Workflow) handleStart() {
	if w.state != model.StateIdle {
		w.logger.Info("Start ignored, not idle", zap.String("state", string(w.state)))
		return
	}

	w.generation++
	w.runID = uuid.New().String()
	w.scan = model.ScanResult{}
	w.record = nil
	w.observed = nil
	w.cases = model.DefaultTestCases()
	w.scanner.Clear()

	w.logger.Info("Test run started", zap.String("run_id", w.runID))
	w.setState(model.StateConnecting, statusConnecting)
	w.serial.Start(w.generation, w.events)
}

func (w *Workflow) handleReset() {
	w.logger.Info("--- Resetting ---")
	w.cancelInflight()

	w.runID = ""
	w.scan = model.ScanResult{}
	w.record = nil
	w.observed = nil
	w.cases = model.DefaultTestCases()
	w.scanner.Clear()

	w.setState(model.StateIdle, statusReady)
}

func (w *Workflow) handleKey(text string, terminator bool) {
	if w.state != model.StateScanning {
		return
	}

	code, ok := w.scanner.HandleKey(text, terminator)
	if !ok {
		return
	}
	w.handleScannedCode(code)
}

func (w *Workflow) handleScannedCode(code string) {
	if err := model.ValidateScanCode(code); err != nil {
		w.logger.Error("Scanned code failed validation", zap.Error(err))
		w.markCase(model.CaseScanCodes, model.CaseFailure)
		w.abortToIdle(statusScanInvalid)
		return
	}

	w.scan.Codes = append(w.scan.Codes, code)

	switch len(w.scan.Codes) {
	case 1:
		w.logger.Info("First code scanned: " + code)
		w.setState(model.StateScanning, statusScanBottom)
	case model.RequiredScanCount:
		w.logger.Info("Second code scanned: " + code)
		w.markCase(model.CaseScanCodes, model.CaseSuccess)
		w.beginFetch()
	}
}

func (w *Workflow) beginFetch() {
	w.setState(model.StateFetching, statusFetching)

	ctx, cancel := context.WithCancel(context.Background())
	w.fetchCancel = cancel
	w.server.Fetch(ctx, w.generation, w.scan.Codes[0], w.scan.Codes[1], w.events)
}

func (w *Workflow) handleEvent(event model.Event) {
	switch event.Type {
	case model.EventSerialConnected:
		w.handleSerialConnected()
	case model.EventSerialError:
		w.handleSerialError(event.Err)
	case model.EventSerialLine:
		w.handleSerialLine(event.Line)
	case model.EventRecordFetched:
		w.handleRecordFetched(event.Record)
	case model.EventFetchFailed:
		w.handleFetchFailed(event.Err)
	case model.EventCableTimeout:
		w.handleCableTimeout()
	}
}

func (w *Workflow) handleSerialConnected() {
	if w.state != model.StateConnecting {
		return
	}

	w.logger.Info("Connected to UART")
	w.markCase(model.CaseConnectUART, model.CaseSuccess)
	w.setState(model.StateScanning, statusScanTop)
}

func (w *Workflow) handleSerialError(err error) {
	w.logger.Error("UART connection failed", zap.Error(err))
	w.markCase(w.caseForState(), model.CaseFailure)
	w.abortToIdle(statusUARTFailed)
}

func (w *Workflow) handleSerialLine(line string) {
	w.logger.Info("S> " + line)

	if w.state != model.StateConnectingCables {
		return
	}

	for _, raw := range model.MACPattern.FindAllString(line, -1) {
		mac, err := model.NormalizeMAC(raw)
		if err != nil {
			continue
		}

		if !w.record.ContainsMAC(mac) {
			mismatch := &model.MismatchError{MAC: mac}
			w.logger.Error("MAC verification failed", zap.Error(mismatch))
			w.markCase(model.CaseVerifyMACs, model.CaseFailure)
			w.failRun(statusMACMismatch)
			return
		}

		w.observed[mac] = true
	}

	if len(w.observed) == len(w.record.MACs) {
		w.logger.Info("All expected MAC addresses observed")
		w.markCase(model.CaseVerifyMACs, model.CaseSuccess)
		w.finishRun()
	}
}

func (w *Workflow) handleRecordFetched(record *model.ServerRecord) {
	if w.state != model.StateFetching {
		return
	}

	w.fetchCancel = nil
	w.record = record
	w.observed = make(map[string]bool, len(record.MACs))
	w.markCase(model.CaseFetchRecord, model.CaseSuccess)
	w.setState(model.StateConnectingCables, statusConnectCables)
	w.startCableTimer()
}

func (w *Workflow) handleFetchFailed(err error) {
	if w.state != model.StateFetching {
		return
	}

	w.fetchCancel = nil
	w.logger.Error("Fetching serial and MACs failed", zap.Error(err))
	w.markCase(model.CaseFetchRecord, model.CaseFailure)
	w.abortToIdle(statusServerFailed)
}

func (w *Workflow) handleCableTimeout() {
	if w.state != model.StateConnectingCables {
		return
	}

	w.logger.Error("Cable check timed out",
		zap.Int("macs_observed", len(w.observed)),
		zap.Int("macs_expected", len(w.record.MACs)),
	)
	w.markCase(model.CaseVerifyMACs, model.CaseFailure)
	w.failRun(statusCableTimedOut)
}

// startCableTimer arms the verification deadline. The callback posts
// an event instead of touching state so expiry is serialized with
// everything else on the loop.
func (w *Workflow) startCableTimer() {
	generation := w.generation
	w.cableTimer = time.AfterFunc(w.cfg.Station.CableTimeout, func() {
		select {
		case w.events <- model.Event{
			Type:       model.EventCableTimeout,
			Generation: generation,
			Timestamp:  time.Now(),
		}:
		default:
		}
	})
}

// finishRun ends the run in SUCCESS
func (w *Workflow) finishRun() {
	w.cancelInflight()
	w.logger.Info("Done! Board passed all tests",
		zap.String("serial", w.record.Serial),
	)
	w.setState(model.StateSuccess, statusAllTestsPassed)
}

// failRun ends the run in FAILURE; the operator recovers via Reset
func (w *Workflow) failRun(status string) {
	w.cancelInflight()
	w.setState(model.StateFailure, status)
}

// abortToIdle recovers from a step failure straight back to IDLE so
// the operator can press Start again without a separate reset. The
// failed checklist entry stays visible; captured codes are cleared.
func (w *Workflow) abortToIdle(status string) {
	w.cancelInflight()
	w.scan = model.ScanResult{}
	w.scanner.Clear()
	w.setState(model.StateIdle, status)
}

// cancelInflight stops the serial reader, any outstanding fetch and
// the cable timer, and invalidates the generation so anything already
// posted is dropped on arrival.
func (w *Workflow) cancelInflight() {
	w.generation++
	w.serial.Stop()
	if w.fetchCancel != nil {
		w.fetchCancel()
		w.fetchCancel = nil
	}
	if w.cableTimer != nil {
		w.cableTimer.Stop()
		w.cableTimer = nil
	}
}

func (w *Workflow) teardown() {
	w.cancelInflight()
}

// caseForState maps the current state to the checklist entry it is
// exercising, for attributing unexpected serial failures.
func (w *Workflow) caseForState() model.CaseKey {
	switch w.state {
	case model.StateConnecting:
		return model.CaseConnectUART
	case model.StateScanning:
		return model.CaseScanCodes
	case model.StateFetching:
		return model.CaseFetchRecord
	default:
		return model.CaseVerifyMACs
	}
}

func (w *Workflow) markCase(key model.CaseKey, result model.CaseResult) {
	for i := range w.cases {
		if w.cases[i].Key == key {
			w.cases[i].Result = result
			return
		}
	}
}

func (w *Workflow) setState(state model.TestState, status string) {
	w.state = state
	w.status = status
	w.logger.Info("State changed",
		zap.String("state", string(state)),
		zap.String("run_id", w.runID),
	)
	w.publish()
}

// publish builds the snapshot and hands it to the notifier. Control
// enablement is derived from state alone.
func (w *Workflow) publish() {
	snapshot := model.Snapshot{
		RunID:        w.runID,
		State:        w.state,
		Status:       w.status,
		Codes:        append([]string(nil), w.scan.Codes...),
		Cases:        append([]model.TestCase(nil), w.cases...),
		StartEnabled: w.state == model.StateIdle,
		ResetEnabled: w.state != model.StateIdle,
	}

	w.snapMutex.Lock()
	w.lastSnapshot = snapshot
	w.snapMutex.Unlock()

	if w.notifier != nil {
		w.notifier.StateChanged(snapshot)
	}
}
