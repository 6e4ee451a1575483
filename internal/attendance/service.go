package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"schoolattend/internal/apperr"
	"schoolattend/internal/auth"
	"schoolattend/internal/cache"
	"schoolattend/internal/metrics"
	"schoolattend/internal/queue"
	"schoolattend/internal/student"
)

const (
	// The roster summary is cached under summaryKey:<generation>. Invalidation bumps
	// the generation, so a summary computed before a write is never read after it.
	summaryKey     = "attendance:summary"
	summaryGenKey  = "attendance:summary:gen"
	publishTimeout = 2 * time.Second
)

// Repository persists the ledger.
type Repository interface {
	// InsertRecords writes every record independently: a failing record does not stop
	// the others. It returns how many were written and the first failure.
	InsertRecords(ctx context.Context, recs []Record) (int, error)
	// StudentHistory returns a student's records, newest date first.
	StudentHistory(ctx context.Context, studentRef string) ([]HistoryEntry, error)
	// RosterSummary counts records for every directory student in one pass.
	RosterSummary(ctx context.Context) ([]RosterEntry, error)
	RecordsOn(ctx context.Context, day time.Time) ([]DayEntry, error)
}

// Directory resolves students by their external id.
type Directory interface {
	GetByStudentID(ctx context.Context, studentID string) (student.Student, error)
	Lookup(ctx context.Context, studentIDs []string) (map[string]student.Student, error)
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Service coordinates attendance submission and reporting.
type Service struct {
	repo       Repository
	directory  Directory
	events     Publisher
	cache      cache.Store
	summaryTTL time.Duration
	log        *zap.Logger
	now        func() time.Time
}

// NewService creates a service. events and store may be nil.
func NewService(repo Repository, directory Directory, events Publisher, store cache.Store, summaryTTL time.Duration, log *zap.Logger) *Service {
	if store == nil {
		store = cache.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		directory:  directory,
		events:     events,
		cache:      store,
		summaryTTL: summaryTTL,
		log:        log,
		now:        time.Now,
	}
}

// Submit records a day's attendance for a batch of students. Every student id must
// resolve before anything is written.
func (s *Service) Submit(ctx context.Context, caller auth.Principal, req SubmitRequest) (SubmitResult, error) {
	day, err := ParseDate(req.Date)
	if err != nil {
		return SubmitResult{}, s.reject("date", apperr.Invalid(err.Error()))
	}
	if len(req.Entries) == 0 {
		return SubmitResult{}, s.reject("empty", apperr.Invalid("attendanceData must contain at least one entry"))
	}

	ids := make([]string, len(req.Entries))
	for i, e := range req.Entries {
		ids[i] = strings.TrimSpace(e.StudentID)
	}
	found, err := s.directory.Lookup(ctx, ids)
	if err != nil {
		return SubmitResult{}, err
	}

	now := s.now().UTC()
	recs := make([]Record, 0, len(req.Entries))
	for i, e := range req.Entries {
		st, ok := found[ids[i]]
		if !ok {
			return SubmitResult{}, s.reject("unknown_student", apperr.Invalid(fmt.Sprintf("Student with ID %s not found", e.StudentID)))
		}
		if !e.Status.Valid() {
			return SubmitResult{}, s.reject("status", apperr.Invalid(fmt.Sprintf("Invalid status %q for student %s", e.Status, e.StudentID)))
		}
		recs = append(recs, Record{
			StudentRef: st.ID,
			Date:       day,
			Status:     e.Status,
			MarkedBy:   caller.ID,
			CreatedAt:  now,
		})
	}

	inserted, err := s.repo.InsertRecords(ctx, recs)
	metrics.RecordsWritten.Add(float64(inserted))
	if inserted > 0 {
		s.invalidateSummary(ctx)
		s.publish(ctx, SubmittedEvent{Date: FormatDay(day), Count: inserted, MarkedBy: caller.ID})
	}
	if err != nil {
		s.log.Warn("attendance batch partially written",
			zap.String("date", FormatDay(day)), zap.Int("inserted", inserted), zap.Int("total", len(recs)), zap.Error(err))
		return SubmitResult{Inserted: inserted}, s.reject("write", apperr.Wrap(apperr.Validation, err, err.Error()))
	}

	s.log.Info("attendance submitted",
		zap.String("date", FormatDay(day)), zap.Int("records", inserted), zap.String("marked_by", caller.ID))
	return SubmitResult{Inserted: inserted}, nil
}

// StudentReport returns the full history and summary of one student.
func (s *Service) StudentReport(ctx context.Context, studentID string) (Report, error) {
	st, err := s.directory.GetByStudentID(ctx, studentID)
	if err != nil {
		return Report{}, err
	}
	history, err := s.repo.StudentHistory(ctx, st.ID)
	if err != nil {
		return Report{}, err
	}
	ident := st.Identity()
	ident.ID = ""
	return Report{Student: ident, Attendance: history, Summary: Summarize(history)}, nil
}

// RosterSummary returns every student with its counts, served from cache when fresh.
func (s *Service) RosterSummary(ctx context.Context) ([]RosterEntry, error) {
	gen := s.summaryGeneration(ctx)
	var rows []RosterEntry
	hit, err := s.cache.Get(ctx, summaryCacheKey(gen), &rows)
	if err != nil {
		s.log.Warn("summary cache get failed", zap.Error(err))
	}
	metrics.CacheResult("summary", hit)
	if hit {
		return rows, nil
	}
	return s.computeSummary(ctx, gen)
}

// RefreshSummary recomputes the roster summary and stores it in the cache.
func (s *Service) RefreshSummary(ctx context.Context) ([]RosterEntry, error) {
	return s.computeSummary(ctx, s.summaryGeneration(ctx))
}

// computeSummary stores rows under gen, read before the query ran. If a write
// bumped the generation meanwhile, the entry is simply never looked up.
func (s *Service) computeSummary(ctx context.Context, gen int64) ([]RosterEntry, error) {
	rows, err := s.repo.RosterSummary(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, summaryCacheKey(gen), rows, s.summaryTTL); err != nil {
		s.log.Warn("summary cache set failed", zap.Error(err))
	}
	return rows, nil
}

func (s *Service) summaryGeneration(ctx context.Context) int64 {
	var gen int64
	if _, err := s.cache.Get(ctx, summaryGenKey, &gen); err != nil {
		s.log.Warn("summary generation get failed", zap.Error(err))
	}
	return gen
}

func summaryCacheKey(gen int64) string {
	return fmt.Sprintf("%s:%d", summaryKey, gen)
}

// DateSheet lists the records marked for one day.
func (s *Service) DateSheet(ctx context.Context, date string) ([]DayEntry, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	return s.repo.RecordsOn(ctx, day)
}

// DirectoryChanged drops the cached summary after a student mutation.
func (s *Service) DirectoryChanged(ctx context.Context) {
	s.invalidateSummary(ctx)
}

func (s *Service) invalidateSummary(ctx context.Context) {
	gen, err := s.cache.Incr(ctx, summaryGenKey)
	if err != nil {
		s.log.Warn("summary generation bump failed", zap.Error(err))
		return
	}
	// the previous generation is unreachable now; dropping it only frees memory
	if err := s.cache.Delete(ctx, summaryCacheKey(gen-1)); err != nil {
		s.log.Warn("summary cache delete failed", zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, evt SubmittedEvent) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	msg, err := queue.NewMessage(EventSubmitted, evt)
	if err == nil {
		err = s.events.Publish(ctx, msg)
	}
	if err != nil {
		s.log.Warn("queue publish failed", zap.String("type", EventSubmitted), zap.Error(err))
	}
}

func (s *Service) reject(reason string, err error) error {
	metrics.SubmissionsRejected.WithLabelValues(reason).Inc()
	return err
}
