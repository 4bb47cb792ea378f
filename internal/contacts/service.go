package contacts

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew = "contacts.service.new"
	opList       = "contacts.list"
	opCreate     = "contacts.create"
	opUpdate     = "contacts.update"
	opDelete     = "contacts.delete"
)

// ServiceConfig carries the dependencies of the mutation service.
type ServiceConfig struct {
	Database *gorm.DB
	Notifier Notifier
	Logger   *zap.Logger
}

// Service applies contact mutations against the record store and publishes
// a change notification after each successful commit. Each operation is a
// single statement; email uniqueness races are resolved by the store's
// unique index and surfaced as ConflictError.
type Service struct {
	db       *gorm.DB
	notifier Notifier
	logger   *zap.Logger
}

// NewService validates the configuration and returns a mutation service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:       cfg.Database,
		notifier: cfg.Notifier,
		logger:   logger,
	}, nil
}

// List returns one page of contacts matching the query's search term,
// ordered newest first, plus the pre-pagination total. Out-of-range paging
// values are clamped, never rejected.
func (s *Service) List(ctx context.Context, query PageQuery) (Page, error) {
	normalized := query.Normalize()

	var total int64
	if err := s.scoped(ctx, normalized).Count(&total).Error; err != nil {
		s.logError(opList, "count_failed", err)
		return Page{}, newServiceError(opList, "count_failed", err)
	}

	var rows []Contact
	offset := (normalized.Page - 1) * normalized.PageSize
	if err := s.scoped(ctx, normalized).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(normalized.PageSize).
		Find(&rows).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return Page{}, newServiceError(opList, "query_failed", err)
	}

	return Page{
		Query:      normalized,
		Contacts:   rows,
		Total:      total,
		TotalPages: totalPages(total, normalized.PageSize),
	}, nil
}

// Create validates the input, inserts the contact and publishes a Created
// notification carrying the canonical new record.
func (s *Service) Create(ctx context.Context, input ContactInput) (Contact, error) {
	normalized := input.Normalize()
	if validationErr := normalized.Validate(); validationErr != nil {
		return Contact{}, validationErr
	}

	taken, err := s.emailTaken(ctx, normalized.Email, 0)
	if err != nil {
		s.logError(opCreate, "email_check_failed", err)
		return Contact{}, newServiceError(opCreate, "email_check_failed", err)
	}
	if taken {
		return Contact{}, &ConflictError{Email: normalized.Email}
	}

	record := Contact{Name: normalized.Name, Email: normalized.Email, Phone: normalized.Phone}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return Contact{}, &ConflictError{Email: normalized.Email}
		}
		s.logError(opCreate, "insert_failed", err)
		return Contact{}, newServiceError(opCreate, "insert_failed", err)
	}

	s.publish(ChangeNotification{Type: ChangeCreated, Contact: &record})
	return record, nil
}

// Update validates the input, rewrites the identified contact and
// publishes an Updated notification with the post-update record.
func (s *Service) Update(ctx context.Context, id int64, input ContactInput) (Contact, error) {
	normalized := input.Normalize()
	if validationErr := normalized.Validate(); validationErr != nil {
		return Contact{}, validationErr
	}

	var record Contact
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		s.logError(opUpdate, "select_failed", err, zap.Int64("contact_id", id))
		return Contact{}, newServiceError(opUpdate, "select_failed", err)
	}

	taken, err := s.emailTaken(ctx, normalized.Email, id)
	if err != nil {
		s.logError(opUpdate, "email_check_failed", err, zap.Int64("contact_id", id))
		return Contact{}, newServiceError(opUpdate, "email_check_failed", err)
	}
	if taken {
		return Contact{}, &ConflictError{Email: normalized.Email}
	}

	record.Name = normalized.Name
	record.Email = normalized.Email
	record.Phone = normalized.Phone
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return Contact{}, &ConflictError{Email: normalized.Email}
		}
		s.logError(opUpdate, "save_failed", err, zap.Int64("contact_id", id))
		return Contact{}, newServiceError(opUpdate, "save_failed", err)
	}

	s.publish(ChangeNotification{Type: ChangeUpdated, Contact: &record})
	return record, nil
}

// Delete removes the identified contact and publishes a Deleted
// notification carrying the pre-delete snapshot.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var snapshot Contact
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		s.logError(opDelete, "select_failed", err, zap.Int64("contact_id", id))
		return newServiceError(opDelete, "select_failed", err)
	}

	if err := s.db.WithContext(ctx).Delete(&Contact{}, id).Error; err != nil {
		s.logError(opDelete, "delete_failed", err, zap.Int64("contact_id", id))
		return newServiceError(opDelete, "delete_failed", err)
	}

	s.publish(ChangeNotification{Type: ChangeDeleted, Contact: &snapshot, DeletedID: id})
	return nil
}

func (s *Service) scoped(ctx context.Context, query PageQuery) *gorm.DB {
	db := s.db.WithContext(ctx).Model(&Contact{})
	if query.Search == "" {
		return db
	}
	pattern := "%" + strings.ToLower(query.Search) + "%"
	return db.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?", pattern, pattern, pattern)
}

func (s *Service) emailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	var count int64
	db := s.db.WithContext(ctx).Model(&Contact{}).Where("LOWER(email) = ?", strings.ToLower(email))
	if excludeID != 0 {
		db = db.Where("id <> ?", excludeID)
	}
	if err := db.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) publish(notification ChangeNotification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(notification)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("contacts service error", attrs...)
}

func totalPages(total int64, pageSize int) int {
	if total == 0 {
		return 0
	}
	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}
	return int(pages)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
