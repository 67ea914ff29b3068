package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"library_pos_backend/internal/capture"
	"library_pos_backend/internal/decode"
	"library_pos_backend/internal/models"
	"library_pos_backend/pkg/utils"
)

const (
	ScanModeCreate         = "create"
	ScanModeUpdateQuantity = "update_quantity"
	ScanModeAdded          = "added"

	ScanSourceCamera = "camera"
	ScanSourceManual = "manual"
)

// ScanResult is what a detected barcode did. For the add target it tells the
// form whether to create a new book or update an existing one; for the bill
// target it carries the bill after the item was added.
type ScanResult struct {
	SessionID string       `json:"session_id,omitempty"`
	Target    string       `json:"target"`
	Barcode   string       `json:"barcode"`
	Format    string       `json:"format,omitempty"`
	Source    string       `json:"source"`
	Mode      string       `json:"mode,omitempty"`
	Book      *models.Book `json:"book,omitempty"`
	Bill      *models.Bill `json:"bill,omitempty"`
	Error     string       `json:"error,omitempty"`
	ErrorCode string       `json:"error_code,omitempty"`
}

// ScanStatus is the capture status plus a result that has not been read yet.
type ScanStatus struct {
	capture.Status
	Result *ScanResult `json:"result,omitempty"`
}

type ManualScanRequest struct {
	Barcode string `json:"barcode" binding:"required"`
}

type FrameRequest struct {
	Image string `json:"image" binding:"required"`
}

// FrameSink receives camera reports and frames uploaded by the browser.
// *capture.PushCamera satisfies it.
type FrameSink interface {
	Attach(key capture.Key, a capture.Attachment) error
	Push(key capture.Key, frame decode.Frame) (capture.Controls, error)
}

// --- ScanService Interface ---
type ScanService interface {
	Start(operator string, target capture.Target) (ScanStatus, error)
	Status(operator string, target capture.Target) ScanStatus
	Poll(operator string, target capture.Target) ScanStatus
	Stop(operator string, target capture.Target, reason string) (ScanStatus, error)
	StopAll(operator, reason string) int
	AttachCamera(operator string, target capture.Target, a capture.Attachment) error
	PushFrame(operator string, target capture.Target, image string) (capture.Controls, error)
	ToggleTorch(operator string, target capture.Target) (bool, error)
	Manual(ctx context.Context, operator string, target capture.Target, barcode string) (*ScanResult, error)
	Shutdown(ctx context.Context) error
}

// --- scanService Implementation ---
type scanService struct {
	manager   *capture.Manager
	sink      FrameSink
	inventory InventoryService
	bills     BillService
	minLength int

	mu      sync.Mutex
	results map[capture.Key]*ScanResult
}

// NewScanService wires the capture manager to the inventory and bill services.
// Every detected barcode is routed by target as soon as its session ends.
func NewScanService(manager *capture.Manager, sink FrameSink, inventory InventoryService, bills BillService, minLength int) ScanService {
	s := &scanService{
		manager:   manager,
		sink:      sink,
		inventory: inventory,
		bills:     bills,
		minLength: minLength,
		results:   make(map[capture.Key]*ScanResult),
	}
	manager.OnFinish(s.handleOutcome)
	return s
}

func (s *scanService) handleOutcome(outcome capture.Outcome) {
	if outcome.State != capture.StateDetected {
		return
	}
	result := s.route(context.Background(), outcome.Key, outcome.Barcode)
	result.SessionID = outcome.SessionID
	result.Format = outcome.Format
	result.Source = ScanSourceCamera

	s.mu.Lock()
	s.results[outcome.Key] = result
	s.mu.Unlock()
}

// route applies a barcode to its target.
func (s *scanService) route(ctx context.Context, key capture.Key, barcode string) *ScanResult {
	result := &ScanResult{Target: string(key.Target), Barcode: barcode}
	fields := map[string]interface{}{"operator": key.Operator, "target": string(key.Target), "barcode": barcode}

	switch key.Target {
	case capture.TargetBill:
		bill, err := s.bills.AddItem(ctx, key.Operator, barcode)
		result.Bill = &bill
		if err != nil {
			result.Error, result.ErrorCode = scanError(err)
			utils.LogWarn("Scanned item was not added to bill", mergeScanFields(fields, err))
			return result
		}
		result.Mode = ScanModeAdded
	case capture.TargetAdd:
		book, err := s.inventory.FindByBarcode(ctx, barcode)
		switch {
		case err == nil:
			result.Mode = ScanModeUpdateQuantity
			result.Book = book
		case errors.Is(err, ErrBookNotFound):
			result.Mode = ScanModeCreate
		default:
			result.Error, result.ErrorCode = scanError(err)
			utils.LogError(err, "Failed to look up scanned book", fields)
			return result
		}
	}
	utils.LogInfo("Barcode routed", mergeScanFields(fields, nil, result.Mode))
	return result
}

func scanError(err error) (string, string) {
	switch {
	case errors.Is(err, ErrBookNotFound):
		return err.Error(), utils.ErrCodeNotFound
	case errors.Is(err, ErrOutOfStock):
		return err.Error(), utils.ErrCodeOutOfStock
	case errors.Is(err, ErrValidation):
		return err.Error(), utils.ErrCodeValidationFailed
	}
	return "Failed to process scanned barcode", utils.ErrCodeInternalServerError
}

func mergeScanFields(fields map[string]interface{}, err error, mode ...string) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	if err != nil {
		out["error"] = err.Error()
	}
	if len(mode) > 0 {
		out["mode"] = mode[0]
	}
	return out
}

func scanKey(operator string, target capture.Target) capture.Key {
	return capture.Key{Operator: operator, Target: target}
}

func (s *scanService) Start(operator string, target capture.Target) (ScanStatus, error) {
	k := scanKey(operator, target)
	s.mu.Lock()
	delete(s.results, k)
	s.mu.Unlock()

	session, err := s.manager.Start(k)
	if err != nil {
		return ScanStatus{Status: s.manager.Status(k)}, err
	}
	return ScanStatus{Status: session.Status()}, nil
}

func (s *scanService) Status(operator string, target capture.Target) ScanStatus {
	k := scanKey(operator, target)
	s.mu.Lock()
	result := s.results[k]
	s.mu.Unlock()
	return ScanStatus{Status: s.manager.Status(k), Result: result}
}

// Poll is Status that hands out a pending result only once.
func (s *scanService) Poll(operator string, target capture.Target) ScanStatus {
	k := scanKey(operator, target)
	status := s.manager.Status(k)
	s.mu.Lock()
	result := s.results[k]
	delete(s.results, k)
	s.mu.Unlock()
	return ScanStatus{Status: status, Result: result}
}

func (s *scanService) Stop(operator string, target capture.Target, reason string) (ScanStatus, error) {
	status, err := s.manager.Stop(scanKey(operator, target), reason)
	if errors.Is(err, capture.ErrNoSession) {
		return ScanStatus{Status: status}, nil
	}
	return ScanStatus{Status: status}, err
}

func (s *scanService) StopAll(operator, reason string) int {
	return s.manager.StopAll(operator, reason)
}

func (s *scanService) AttachCamera(operator string, target capture.Target, a capture.Attachment) error {
	return s.sink.Attach(scanKey(operator, target), a)
}

func (s *scanService) PushFrame(operator string, target capture.Target, image string) (capture.Controls, error) {
	frame, err := decode.FrameFromDataURL(image)
	if err != nil {
		return capture.Controls{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	frame.Target = string(target)
	return s.sink.Push(scanKey(operator, target), frame)
}

func (s *scanService) ToggleTorch(operator string, target capture.Target) (bool, error) {
	return s.manager.ToggleTorch(scanKey(operator, target))
}

// Manual routes a typed barcode exactly like a detected one. Any running
// session for the same target is stopped first.
func (s *scanService) Manual(ctx context.Context, operator string, target capture.Target, barcode string) (*ScanResult, error) {
	barcode = utils.NormalizeBarcode(barcode)
	if barcode == "" {
		return nil, validationError("barcode is required")
	}
	if len(barcode) < s.minLength {
		return nil, validationError("barcode must be at least %d characters", s.minLength)
	}
	k := scanKey(operator, target)
	if _, err := s.manager.Stop(k, "manual entry"); err != nil && !errors.Is(err, capture.ErrNoSession) {
		return nil, err
	}
	s.mu.Lock()
	delete(s.results, k)
	s.mu.Unlock()

	result := s.route(ctx, k, barcode)
	result.Source = ScanSourceManual
	return result, nil
}

func (s *scanService) Shutdown(ctx context.Context) error {
	return s.manager.Shutdown(ctx)
}
