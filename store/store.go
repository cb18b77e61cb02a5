// Package store persists detection records in a single relational table.
package store

import (
	"context"
	"errors"
	"time"

	"glacierguard-api/models"

	"gorm.io/gorm"
)

// detectionRow is the storage shape of models.Detection.
type detectionRow struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp     time.Time `gorm:"column:timestamp;not null;index:idx_detections_timestamp"`
	DetectionType string    `gorm:"column:detection_type;type:text;not null"`
	Confidence    float64   `gorm:"column:confidence;type:double precision;not null"`
	Coordinates   *string   `gorm:"column:coordinates;type:text"`
}

func (detectionRow) TableName() string { return "detections" }

func toRow(in models.DetectionInput) detectionRow {
	return detectionRow{
		DetectionType: *in.DetectionType,
		Confidence:    *in.Confidence,
		Coordinates:   in.Coordinates,
	}
}

func fromRow(r detectionRow) models.Detection {
	return models.Detection{
		ID:            r.ID,
		Timestamp:     r.Timestamp,
		DetectionType: r.DetectionType,
		Confidence:    r.Confidence,
		Coordinates:   r.Coordinates,
	}
}

// Store is the detection record store. It holds no state besides the
// database handle; atomicity and id generation come from the database.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the clock used to stamp creation time.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates or updates the detections table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&detectionRow{}); err != nil {
		return storageError("migrate", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storageError("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storageError("ping", err)
	}
	return nil
}

func validate(in models.DetectionInput) error {
	if in.DetectionType == nil {
		return &ValidationError{Field: "detectionType"}
	}
	if in.Confidence == nil {
		return &ValidationError{Field: "confidence"}
	}
	return nil
}

// Create stamps the creation time and inserts a new record. The database
// assigns the id.
func (s *Store) Create(ctx context.Context, in models.DetectionInput) (models.Detection, error) {
	if err := validate(in); err != nil {
		return models.Detection{}, err
	}

	row := toRow(in)
	// Microseconds are the finest precision both Postgres and SQLite keep.
	row.Timestamp = s.now().UTC().Truncate(time.Microsecond)

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Detection{}, storageError("create", err)
	}
	return fromRow(row), nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (models.Detection, error) {
	var row detectionRow
	err := s.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Detection{}, &NotFoundError{ID: id}
	}
	if err != nil {
		return models.Detection{}, storageError("get", err)
	}
	return fromRow(row), nil
}

// List returns every record in insertion order.
func (s *Store) List(ctx context.Context) ([]models.Detection, error) {
	var rows []detectionRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, storageError("list", err)
	}
	return fromRows(rows), nil
}

// Page selects records with id greater than AfterID, at most Limit of them.
type Page struct {
	AfterID int64
	Limit   int
}

// ListPage returns one keyset page in id order and whether more follow.
func (s *Store) ListPage(ctx context.Context, p Page) ([]models.Detection, bool, error) {
	if p.Limit <= 0 {
		return nil, false, &ValidationError{Field: "limit"}
	}

	var rows []detectionRow
	err := s.db.WithContext(ctx).
		Where("id > ?", p.AfterID).
		Order("id ASC").
		Limit(p.Limit + 1).
		Find(&rows).Error
	if err != nil {
		return nil, false, storageError("list", err)
	}

	hasMore := len(rows) > p.Limit
	if hasMore {
		rows = rows[:p.Limit]
	}
	return fromRows(rows), hasMore, nil
}

// Update overwrites detectionType, confidence and coordinates of an existing
// record. An absent coordinates field clears the stored value.
func (s *Store) Update(ctx context.Context, id int64, in models.DetectionInput) (models.Detection, error) {
	if err := validate(in); err != nil {
		return models.Detection{}, err
	}

	var row detectionRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&detectionRow{}).Where("id = ?", id).Updates(map[string]interface{}{
			"detection_type": *in.DetectionType,
			"confidence":     *in.Confidence,
			"coordinates":    in.Coordinates,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{ID: id}
		}
		return tx.Take(&row, "id = ?", id).Error
	})

	var nf *NotFoundError
	if errors.As(err, &nf) {
		return models.Detection{}, nf
	}
	if err != nil {
		return models.Detection{}, storageError("update", err)
	}
	return fromRow(row), nil
}

// Delete removes a record. Deleting an absent id is a NotFoundError.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&detectionRow{}, "id = ?", id)
	if res.Error != nil {
		return storageError("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// ConfidencesByType groups every stored confidence by detection type.
func (s *Store) ConfidencesByType(ctx context.Context) (map[string][]float64, error) {
	var pairs []struct {
		DetectionType string
		Confidence    float64
	}
	err := s.db.WithContext(ctx).
		Model(&detectionRow{}).
		Select("detection_type", "confidence").
		Order("id ASC").
		Scan(&pairs).Error
	if err != nil {
		return nil, storageError("summarize", err)
	}

	out := make(map[string][]float64)
	for _, p := range pairs {
		out[p.DetectionType] = append(out[p.DetectionType], p.Confidence)
	}
	return out, nil
}

func fromRows(rows []detectionRow) []models.Detection {
	out := make([]models.Detection, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out
}
