package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"koperasi-backend/internal/domain"
	"koperasi-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	reportSetKey = "report_ids"
	reportTTL    = 30 * time.Minute

	maxRowsForReport = 500_000
)

type ReportStatus struct {
	Key        string    `json:"key"`
	Type       string    `json:"type"`
	OperatorID int64     `json:"operator_id"`
	Filters    any       `json:"filters"`
	Progress   float64   `json:"progress"`
	FileURL    *string   `json:"file_url"`
	Error      *string   `json:"error,omitempty"`
	Created    time.Time `json:"created_at"`
}

type ReportCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SAdd(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

type ObjectStore interface {
	UploadXLSX(ctx context.Context, fileName string, data []byte) (string, error)
	GetTemporaryURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type ReportNotifier interface {
	NotifyReportProgress(ctx context.Context, operatorID int64, reportID string, progress float64, stage string) error
	NotifyReportComplete(ctx context.Context, operatorID int64, reportID, url, filename string) error
	NotifyReportFailed(ctx context.Context, operatorID int64, reportID, errMsg string) error
}

type ReportLoanLister interface {
	List(ctx context.Context, f repository.LoansFilter) ([]domain.Loan, error)
}

type ReportPaymentLister interface {
	List(ctx context.Context, f repository.PaymentsFilter) ([]domain.Payment, error)
}

type loanColumn struct {
	Header string
	Value  func(l domain.Loan) any
}

var loanColumns = map[string]loanColumn{
	"id":       {Header: "ID", Value: func(l domain.Loan) any { return l.ID }},
	"borrower": {Header: "Nama Peminjam", Value: func(l domain.Loan) any { return l.DisplayName() }},
	"nik":      {Header: "NIK", Value: func(l domain.Loan) any { return derefStr(l.BorrowerNIK) }},
	"category": {Header: "Kategori", Value: func(l domain.Loan) any { return domain.CategoryLabels[l.Category] }},
	"total_amount":  {Header: "Jumlah Pinjaman", Value: func(l domain.Loan) any { return l.TotalAmount }},
	"interest_rate": {Header: "Bunga (%)", Value: func(l domain.Loan) any { return l.InterestRate.String() }},
	"total_due":     {Header: "Total Tagihan", Value: func(l domain.Loan) any { return l.TotalDue().String() }},
	"due_date":      {Header: "Jatuh Tempo", Value: func(l domain.Loan) any { return l.DueDate.Format("2006-01-02") }},
	"status":        {Header: "Status", Value: func(l domain.Loan) any { return string(l.Status) }},
	"notes":         {Header: "Catatan", Value: func(l domain.Loan) any { return derefStr(l.Notes) }},
	"created_at":    {Header: "Dibuat", Value: func(l domain.Loan) any { return l.CreatedAt.Format("2006-01-02 15:04:05") }},
}

var defaultLoanColumns = []string{
	"id", "borrower", "nik", "category", "total_amount",
	"interest_rate", "total_due", "due_date", "status", "created_at",
}

type paymentColumn struct {
	Header string
	Value  func(p domain.Payment) any
}

var paymentReportColumns = map[string]paymentColumn{
	"id":      {Header: "ID", Value: func(p domain.Payment) any { return p.ID }},
	"loan_id": {Header: "ID Pinjaman", Value: func(p domain.Payment) any { return p.LoanID }},
	"amount":  {Header: "Jumlah", Value: func(p domain.Payment) any { return p.Amount }},
	"method":  {Header: "Metode", Value: func(p domain.Payment) any { return string(p.Method) }},
	"status":  {Header: "Status", Value: func(p domain.Payment) any { return string(p.Status) }},
	"paid_at": {Header: "Tanggal Bayar", Value: func(p domain.Payment) any {
		if p.PaidAt == nil {
			return ""
		}
		return p.PaidAt.Format("2006-01-02 15:04:05")
	}},
	"created_at": {Header: "Dibuat", Value: func(p domain.Payment) any { return p.CreatedAt.Format("2006-01-02 15:04:05") }},
}

var defaultPaymentColumns = []string{
	"paid_at", "id", "loan_id", "amount", "method", "status", "created_at",
}

// ReportService builds XLSX exports in background goroutines, keeps progress
// in Redis and streams it to the operator over the websocket hub.
type ReportService struct {
	loans    ReportLoanLister
	payments ReportPaymentLister
	cache    ReportCache
	store    ObjectStore
	ws       ReportNotifier
	log      *zap.Logger
}

func NewReportService(
	loans ReportLoanLister,
	payments ReportPaymentLister,
	cache ReportCache,
	store ObjectStore,
	ws ReportNotifier,
	log *zap.Logger,
) *ReportService {
	return &ReportService{
		loans:    loans,
		payments: payments,
		cache:    cache,
		store:    store,
		ws:       ws,
		log:      log,
	}
}

func (s *ReportService) saveStatus(ctx context.Context, st *ReportStatus) error {
	if s.cache == nil {
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, st.Key, string(data), reportTTL); err != nil {
		return err
	}
	return s.cache.SAdd(ctx, reportSetKey, st.Key)
}

func (s *ReportService) StartLoansExport(ctx context.Context, selected []string, filter repository.LoansFilter, operatorID int64) (string, error) {
	if len(selected) == 0 {
		selected = defaultLoanColumns
	}

	reportID := fmt.Sprintf("reports:%s", uuid.NewString())
	status := &ReportStatus{
		Key:        reportID,
		Type:       "loans",
		OperatorID: operatorID,
		Filters:    loansFilterMap(filter, selected),
		Created:    time.Now(),
	}
	_ = s.saveStatus(ctx, status)

	go s.runLoansExport(context.Background(), status, selected, filter)

	return reportID, nil
}

func (s *ReportService) runLoansExport(ctx context.Context, status *ReportStatus, selected []string, filter repository.LoansFilter) {
	loans, err := s.loans.List(ctx, filter)
	if err != nil {
		s.failReport(ctx, status, fmt.Sprintf("list loans failed: %v", err))
		return
	}
	if len(loans) > maxRowsForReport {
		s.failReport(ctx, status, fmt.Sprintf("terlalu banyak data untuk diekspor (lebih dari %d baris)", maxRowsForReport))
		return
	}

	var cols []loanColumn
	for _, key := range selected {
		if col, ok := loanColumns[key]; ok {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		s.failReport(ctx, status, "no valid columns selected")
		return
	}

	f := excelize.NewFile()
	sheet := "Pinjaman"
	f.SetSheetName(f.GetSheetName(0), sheet)

	for i, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col.Header)
	}

	total := len(loans)
	for i, l := range loans {
		for colIdx, col := range cols {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, i+2)
			_ = f.SetCellValue(sheet, cell, col.Value(l))
		}
		s.reportChunkProgress(ctx, status, i, total)
	}

	s.finishReport(ctx, status, f, fmt.Sprintf("pinjaman_%s.xlsx", time.Now().Format("20060102_150405")))
}

func (s *ReportService) StartPaymentsExport(ctx context.Context, selected []string, filter repository.PaymentsFilter, operatorID int64) (string, error) {
	if len(selected) == 0 {
		selected = defaultPaymentColumns
	}

	reportID := fmt.Sprintf("reports:%s", uuid.NewString())
	status := &ReportStatus{
		Key:        reportID,
		Type:       "payments",
		OperatorID: operatorID,
		Filters:    paymentsFilterMap(filter, selected),
		Created:    time.Now(),
	}
	_ = s.saveStatus(ctx, status)

	go s.runPaymentsExport(context.Background(), status, selected, filter)

	return reportID, nil
}

func (s *ReportService) runPaymentsExport(ctx context.Context, status *ReportStatus, selected []string, filter repository.PaymentsFilter) {
	payments, err := s.payments.List(ctx, filter)
	if err != nil {
		s.failReport(ctx, status, fmt.Sprintf("list payments failed: %v", err))
		return
	}
	if len(payments) > maxRowsForReport {
		s.failReport(ctx, status, fmt.Sprintf("terlalu banyak data untuk diekspor (lebih dari %d baris)", maxRowsForReport))
		return
	}

	var cols []paymentColumn
	for _, key := range selected {
		if col, ok := paymentReportColumns[key]; ok {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		s.failReport(ctx, status, "no valid columns selected")
		return
	}

	f := excelize.NewFile()
	sheet := "Pembayaran"
	f.SetSheetName(f.GetSheetName(0), sheet)

	for i, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col.Header)
	}

	total := len(payments)
	for i, p := range payments {
		for colIdx, col := range cols {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, i+2)
			_ = f.SetCellValue(sheet, cell, col.Value(p))
		}
		s.reportChunkProgress(ctx, status, i, total)
	}

	s.finishReport(ctx, status, f, fmt.Sprintf("pembayaran_%s.xlsx", time.Now().Format("20060102_150405")))
}

const progressChunk = 1000

func (s *ReportService) reportChunkProgress(ctx context.Context, status *ReportStatus, i, total int) {
	if total == 0 {
		return
	}
	if (i+1)%progressChunk != 0 && i != total-1 {
		return
	}

	progress := math.Round(float64(i+1) / float64(total) * 100.0)
	if progress >= 100 {
		progress = 95 // upload still pending
	}
	status.Progress = progress
	_ = s.saveStatus(ctx, status)
	if s.ws != nil {
		_ = s.ws.NotifyReportProgress(ctx, status.OperatorID, status.Key, progress, "generating")
	}
}

func (s *ReportService) finishReport(ctx context.Context, status *ReportStatus, f *excelize.File, fileName string) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		s.failReport(ctx, status, fmt.Sprintf("write workbook failed: %v", err))
		return
	}

	status.Progress = 95
	_ = s.saveStatus(ctx, status)
	if s.ws != nil {
		_ = s.ws.NotifyReportProgress(ctx, status.OperatorID, status.Key, 95, "uploading")
	}

	key, err := s.store.UploadXLSX(ctx, fileName, buf.Bytes())
	if err != nil {
		s.failReport(ctx, status, fmt.Sprintf("upload failed: %v", err))
		return
	}

	url, err := s.store.GetTemporaryURL(ctx, key, reportTTL)
	if err != nil {
		s.failReport(ctx, status, fmt.Sprintf("presign failed: %v", err))
		return
	}

	status.FileURL = &url
	status.Progress = 100
	_ = s.saveStatus(ctx, status)
	if s.ws != nil {
		_ = s.ws.NotifyReportProgress(ctx, status.OperatorID, status.Key, 100, "ready")
		_ = s.ws.NotifyReportComplete(ctx, status.OperatorID, status.Key, url, fileName)
	}
}

func (s *ReportService) failReport(ctx context.Context, status *ReportStatus, errMsg string) {
	s.log.Error("report export failed",
		zap.String("report_id", status.Key),
		zap.String("type", status.Type),
		zap.String("error", errMsg),
	)
	status.Error = &errMsg
	status.Progress = 100
	_ = s.saveStatus(ctx, status)
	if s.ws != nil {
		_ = s.ws.NotifyReportFailed(ctx, status.OperatorID, status.Key, errMsg)
	}
}

// ListReports returns the operator's report statuses, newest first.
func (s *ReportService) ListReports(ctx context.Context, operatorID int64) ([]ReportStatus, error) {
	if s.cache == nil {
		return nil, errors.New("redis client not configured")
	}

	keys, err := s.cache.SMembers(ctx, reportSetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get report keys: %w", err)
	}

	var statuses []ReportStatus
	for _, key := range keys {
		data, err := s.cache.Get(ctx, key)
		if err != nil {
			continue // expired
		}

		var st ReportStatus
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			continue
		}
		if st.OperatorID == operatorID {
			statuses = append(statuses, st)
		}
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Created.After(statuses[j].Created)
	})
	return statuses, nil
}

func (s *ReportService) GetReport(ctx context.Context, reportID string, operatorID int64) (*ReportStatus, error) {
	if s.cache == nil {
		return nil, errors.New("redis client not configured")
	}

	data, err := s.cache.Get(ctx, reportID)
	if err != nil {
		return nil, ErrNotFound
	}

	var st ReportStatus
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to parse report status: %w", err)
	}
	if st.OperatorID != operatorID {
		return nil, ErrNotFound
	}
	return &st, nil
}

// HumanizeIDAgo renders a timestamp the way the dashboard shows report ages,
// in Indonesian.
func HumanizeIDAgo(t time.Time) string {
	now := time.Now()
	if t.After(now) {
		return "baru saja"
	}

	diff := now.Sub(t)
	minutes := int(diff.Minutes())
	if minutes < 1 {
		return "baru saja"
	}
	if minutes < 60 {
		return fmt.Sprintf("%d menit yang lalu", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%d jam yang lalu", hours)
	}
	days := hours / 24
	if days < 30 {
		return fmt.Sprintf("%d hari yang lalu", days)
	}
	return t.Format("02-01-2006 15:04")
}

func loansFilterMap(f repository.LoansFilter, fields []string) map[string]any {
	m := map[string]any{
		"category":  nil,
		"status":    nil,
		"member_id": nil,
		"fields":    fields,
	}
	if f.Category != nil {
		m["category"] = *f.Category
	}
	if f.Status != nil {
		m["status"] = *f.Status
	}
	if f.MemberID != nil {
		m["member_id"] = *f.MemberID
	}
	return m
}

func paymentsFilterMap(f repository.PaymentsFilter, fields []string) map[string]any {
	m := map[string]any{
		"loan_id":   nil,
		"status":    nil,
		"method":    nil,
		"paid_from": nil,
		"paid_to":   nil,
		"fields":    fields,
	}
	if f.LoanID != nil {
		m["loan_id"] = *f.LoanID
	}
	if f.Status != nil {
		m["status"] = *f.Status
	}
	if f.Method != nil {
		m["method"] = *f.Method
	}
	if f.PaidFrom != nil {
		m["paid_from"] = f.PaidFrom.Format("2006-01-02")
	}
	if f.PaidTo != nil {
		m["paid_to"] = f.PaidTo.Format("2006-01-02")
	}
	return m
}
