package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultPageSize dipakai saat caller tidak menentukan ukuran halaman.
	DefaultPageSize = 20
	// MaxPageSize membatasi ukuran halaman query.
	MaxPageSize = 100
)

// Filters menampung filter dasar untuk query audit. Nilai kosong diabaikan.
type Filters struct {
	Actor    string
	Action   string
	Module   string
	RecordID string
	From     time.Time
	To       time.Time
}

// Page memilih halaman hasil.
type Page struct {
	Page     int
	PageSize int
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result membungkus hasil query dengan informasi paging.
type Result struct {
	Entries []Entry    `json:"entries"`
	Paging  PagingInfo `json:"paging"`
}

// Repository menyediakan akses baca audit_log.
type Repository interface {
	List(ctx context.Context, params ListParams) ([]Entry, error)
}

// Service mengoordinasikan pengambilan data audit.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService membuat service audit baru.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Query mengambil entri audit terbaru lebih dulu dengan paging.
func (s *Service) Query(ctx context.Context, filters Filters, page Page) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := page.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	current := page.Page
	if current <= 0 {
		current = 1
	}
	rows, err := s.repo.List(ctx, ListParams{
		Filters: filters,
		Limit:   pageSize + 1,
		Offset:  (current - 1) * pageSize,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: current, PageSize: pageSize, HasNext: hasNext}
	if current > 1 {
		paging.PrevPage = current - 1
	}
	if hasNext {
		paging.NextPage = current + 1
	}
	if rows == nil {
		rows = []Entry{}
	}
	return Result{Entries: rows, Paging: paging}, nil
}

// VerifyReport merangkum hasil verifikasi seal.
type VerifyReport struct {
	Checked  int
	Tampered []uuid.UUID
}

// Verify menghitung ulang seal entri dalam jendela [since, until], paling
// banyak limit entri. until yang tetap menjaga offset tidak bergeser saat
// entri baru terus ditulis.
func (s *Service) Verify(ctx context.Context, since, until time.Time, limit int) (VerifyReport, error) {
	if s.repo == nil {
		return VerifyReport{}, fmt.Errorf("audit: repository not configured")
	}
	if limit <= 0 {
		limit = 1000
	}
	if until.IsZero() {
		until = time.Now().UTC()
	}
	window := Filters{From: since, To: until}
	var report VerifyReport
	for offset := 0; offset < limit; offset += MaxPageSize {
		batch := MaxPageSize
		if remaining := limit - offset; remaining < batch {
			batch = remaining
		}
		rows, err := s.repo.List(ctx, ListParams{Filters: window, Limit: batch, Offset: offset})
		if err != nil {
			return report, err
		}
		for _, entry := range rows {
			report.Checked++
			if err := entry.Verify(); err != nil {
				report.Tampered = append(report.Tampered, entry.ID)
				s.logger.Error("audit seal mismatch", slog.String("entry_id", entry.ID.String()), slog.String("module", entry.Module), slog.String("record_id", entry.RecordID))
			}
		}
		if len(rows) < batch {
			break
		}
	}
	return report, nil
}
