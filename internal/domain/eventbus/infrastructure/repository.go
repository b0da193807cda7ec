package infrastructure

import (
	"context"
	"time"

	"gorm.io/gorm"

	"matrix-server-go/internal/domain/eventbus"
	"matrix-server-go/internal/domain/eventbus/repository"
	"matrix-server-go/internal/platform/errors"
	"matrix-server-go/internal/platform/storage"
)

// transmissionRepository 传输历史存储库实现
type transmissionRepository struct {
	db *gorm.DB
}

// NewTransmissionRepository 创建传输历史存储库
func NewTransmissionRepository(db *gorm.DB) repository.TransmissionRepository {
	return &transmissionRepository{db: db}
}

func (r *transmissionRepository) Store(ctx context.Context, event eventbus.TransmissionEvent) error {
	record := &storage.TransmissionRecord{
		ID:         event.ID,
		Mode:       event.Mode,
		Source:     event.Source,
		Endpoint:   event.Endpoint,
		Success:    event.Success,
		Error:      event.Error,
		DurationMs: event.DurationMs,
		FinishedAt: event.FinishedAt.UTC(),
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "transmission.store.create", "failed to store transmission", err)
	}
	return nil
}

func (r *transmissionRepository) FindRecent(ctx context.Context, limit int) ([]eventbus.TransmissionEvent, error) {
	var records []storage.TransmissionRecord
	query := r.db.WithContext(ctx).Order("finished_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "transmission.find.recent", "failed to list transmissions", err)
	}
	return convertRecords(records), nil
}

func (r *transmissionRepository) FindByEndpoint(ctx context.Context, endpoint string, limit int) ([]eventbus.TransmissionEvent, error) {
	var records []storage.TransmissionRecord
	query := r.db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		Order("finished_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "transmission.find.endpoint", "failed to find transmissions by endpoint", err)
	}
	return convertRecords(records), nil
}

func (r *transmissionRepository) DeleteOldEvents(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("finished_at < ?", before.UTC()).
		Delete(&storage.TransmissionRecord{})
	if result.Error != nil {
		return 0, errors.Wrap(errors.KindStorage, "transmission.delete.old", "failed to delete old transmissions", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *transmissionRepository) GetEventStats(ctx context.Context) (repository.Stats, error) {
	var rows []struct {
		Success bool
		Count   int64
	}

	if err := r.db.WithContext(ctx).
		Model(&storage.TransmissionRecord{}).
		Select("success, count(*) as count").
		Group("success").
		Scan(&rows).Error; err != nil {
		return repository.Stats{}, errors.Wrap(errors.KindStorage, "transmission.stats", "failed to get transmission stats", err)
	}

	var stats repository.Stats
	for _, row := range rows {
		if row.Success {
			stats.Succeeded += row.Count
		} else {
			stats.Failed += row.Count
		}
	}
	stats.Total = stats.Succeeded + stats.Failed
	return stats, nil
}

// convertRecords 将数据库记录转换为领域事件
func convertRecords(records []storage.TransmissionRecord) []eventbus.TransmissionEvent {
	events := make([]eventbus.TransmissionEvent, len(records))
	for i, rec := range records {
		events[i] = eventbus.TransmissionEvent{
			ID:         rec.ID,
			Mode:       rec.Mode,
			Source:     rec.Source,
			Endpoint:   rec.Endpoint,
			Success:    rec.Success,
			Error:      rec.Error,
			DurationMs: rec.DurationMs,
			FinishedAt: rec.FinishedAt,
		}
	}
	return events
}
