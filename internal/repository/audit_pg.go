package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cexgate/cexgate/internal/model"
)

type PostgresAuditRepo struct {
	db *gorm.DB
}

func NewPostgresAuditRepo(db *gorm.DB) (*PostgresAuditRepo, error) {
	if err := db.AutoMigrate(&model.AuditLog{}); err != nil {
		return nil, err
	}
	return &PostgresAuditRepo{db: db}, nil
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	// Re-delivery of the same request ID is a no-op.
	return r.db.WithContext(ctx).
		Where("id = ?", entry.ID).
		FirstOrCreate(entry).Error
}

func (r *PostgresAuditRepo) List(ctx context.Context, exchangeName string, limit int, from, to *time.Time) ([]*model.AuditLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := r.db.WithContext(ctx).Model(&model.AuditLog{})
	if exchangeName != "" {
		query = query.Where("exchange = ?", exchangeName)
	}
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at <= ?", *to)
	}

	var records []*model.AuditLog
	err := query.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// Prune drops entries older than the retention window.
func (r *PostgresAuditRepo) Prune(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.AuditLog{}).Error
}
