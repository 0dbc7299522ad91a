// Package storage is the PostgreSQL-backed persistence gateway (records kept
// as JSONB documents through gorm) and the Redis-backed poll cursor.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chatcall/backend/internal/gateway"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document is one stored record. Collection and ID form the primary key;
// Seq breaks ordering ties in insertion order.
type Document struct {
	Collection string `gorm:"primaryKey;type:text"`
	ID         string `gorm:"primaryKey;type:text"`
	Seq        int64  `gorm:"autoIncrement;uniqueIndex"`
	Body       []byte `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Service implements gateway.Gateway on PostgreSQL and the poll cursor on
// Redis. Redis may be nil when no cursor persistence is wanted.
type Service struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Logger *slog.Logger
}

var _ gateway.Gateway = (*Service)(nil)

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{DB: db, Redis: rdb, Logger: logger}
}

// Open connects to PostgreSQL and migrates the documents table.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	// Filter lookups are by collection plus one JSON field; an expression
	// index per hot field keeps them off sequential scans.
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_documents_chat ON documents (collection, (body->>'chatId'))`,
		`CREATE INDEX IF NOT EXISTS idx_documents_caller ON documents (collection, (body->>'callerId'))`,
		`CREATE INDEX IF NOT EXISTS idx_documents_receiver ON documents (collection, (body->>'receiverId'))`,
		`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (collection, (body->>'userId'))`,
		`CREATE INDEX IF NOT EXISTS idx_documents_streamer ON documents (collection, (body->>'streamerId'))`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	}
	return db, nil
}

func (s *Service) Create(ctx context.Context, collection string, doc any) (string, error) {
	d, err := gateway.ToDocument(doc)
	if err != nil {
		return "", err
	}
	id, _ := d["id"].(string)
	if id == "" {
		id = uuid.New().String()
		d["id"] = id
	}
	body, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("%w: %v", gateway.ErrInvalid, err)
	}

	rec := Document{Collection: collection, ID: id, Body: body}
	if err := s.DB.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", fmt.Errorf("%w: %s/%s", gateway.ErrConflict, collection, id)
		}
		s.Logger.Error("failed to create document", "collection", collection, "id", id, "error", err)
		return "", fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	return id, nil
}

func (s *Service) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var rec Document
	err := s.DB.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", gateway.ErrNotFound, collection, id)
	}
	if err != nil {
		s.Logger.Error("failed to get document", "collection", collection, "id", id, "error", err)
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	return rec.Body, nil
}

func (s *Service) Query(ctx context.Context, collection string, q gateway.Query) (*gateway.QueryResult, error) {
	if err := gateway.ValidateQuery(q); err != nil {
		return nil, err
	}
	filter, err := gateway.NormalizeFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	scope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Model(&Document{}).Where("collection = ?", collection)
		for field, value := range filter {
			expr := jsonField(field)
			if value == nil {
				tx = tx.Where(expr + " IS NULL")
				continue
			}
			tx = tx.Where(expr+" = ?", gateway.ScalarString(value))
		}
		return tx
	}

	var total int64
	if err := scope(s.DB.WithContext(ctx)).Count(&total).Error; err != nil {
		s.Logger.Error("failed to count documents", "collection", collection, "error", err)
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}

	tx := scope(s.DB.WithContext(ctx))
	if q.Sort != nil && q.Sort.Field != "" {
		// Sortable fields are RFC 3339 timestamps.
		tx = tx.Order(clause.OrderBy{Expression: clause.Expr{
			SQL: "(" + jsonField(q.Sort.Field) + ")::timestamptz " + direction(q.Sort.Desc) + " NULLS LAST, seq " + direction(q.Sort.Desc),
		}})
	} else {
		tx = tx.Order("seq ASC")
	}

	var recs []Document
	offset := (q.Page - 1) * q.Limit
	if err := tx.Offset(offset).Limit(q.Limit).Find(&recs).Error; err != nil {
		s.Logger.Error("failed to query documents", "collection", collection, "error", err)
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}

	res := &gateway.QueryResult{
		Items:      make([]json.RawMessage, 0, len(recs)),
		HasMore:    int64(offset+len(recs)) < total,
		TotalPages: gateway.TotalPages(int(total), q.Limit),
		Total:      int(total),
	}
	for _, rec := range recs {
		res.Items = append(res.Items, rec.Body)
	}
	return res, nil
}

func (s *Service) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	p, err := gateway.ToDocument(patch)
	if err != nil {
		return err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec Document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND id = ?", collection, id).
			First(&rec).Error
		if err != nil {
			return err
		}

		var doc gateway.Document
		if err := json.Unmarshal(rec.Body, &doc); err != nil {
			return fmt.Errorf("decode stored body: %w", err)
		}
		for k, v := range p {
			if k == "id" {
				continue
			}
			doc[k] = v
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return tx.Model(&Document{}).
			Where("collection = ? AND id = ?", collection, id).
			Updates(map[string]interface{}{
				"body":       body,
				"updated_at": gorm.Expr("NOW()"),
			}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s/%s", gateway.ErrNotFound, collection, id)
	}
	if err != nil {
		s.Logger.Error("failed to update document", "collection", collection, "id", id, "error", err)
		return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, collection, id string) error {
	res := s.DB.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&Document{})
	if res.Error != nil {
		s.Logger.Error("failed to delete document", "collection", collection, "id", id, "error", res.Error)
		return fmt.Errorf("%w: %v", gateway.ErrUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s", gateway.ErrNotFound, collection, id)
	}
	return nil
}

// jsonField renders body->>'field' with the key quoted as a SQL literal.
func jsonField(field string) string {
	return "body->>" + pq.QuoteLiteral(field)
}

func direction(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}
