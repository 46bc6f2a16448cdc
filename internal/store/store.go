// Package store abstracts the keyed row storage used by the access core.
// Components depend on the narrow interfaces; Table is the gorm backed
// implementation used in production and in tests over sqlite.
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Reader exposes read access to one entity type.
type Reader[T any] interface {
	First(ctx context.Context, q Query) (*T, error)
	Find(ctx context.Context, q Query) ([]T, error)
	Count(ctx context.Context, q Query) (int64, error)
}

// Appender inserts new rows.
type Appender[T any] interface {
	Append(ctx context.Context, record *T) error
}

// AppendOnly is the contract for tables whose rows are never modified.
type AppendOnly[T any] interface {
	Reader[T]
	Appender[T]
}

// RecordStore adds conditional updates for entities with mutable status fields.
type RecordStore[T any] interface {
	AppendOnly[T]
	// Update applies fields to every row matching q and returns the number of
	// rows changed. q must carry at least one condition.
	Update(ctx context.Context, q Query, fields map[string]any) (int64, error)
}

var errUnconditionalUpdate = errors.New("store: update requires a condition")

// Table is a gorm backed RecordStore.
type Table[T any] struct {
	db *gorm.DB
}

// NewTable binds a table for T to db.
func NewTable[T any](db *gorm.DB) *Table[T] {
	return &Table[T]{db: db}
}

func (t *Table[T]) session(ctx context.Context) *gorm.DB {
	if ctx == nil {
		ctx = context.Background()
	}
	return t.db.WithContext(ctx).Model(new(T))
}

func (t *Table[T]) First(ctx context.Context, q Query) (*T, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}
	var out T
	if err := q.Page(1, q.offset).apply(t.session(ctx)).Take(&out).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (t *Table[T]) Find(ctx context.Context, q Query) ([]T, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}
	out := make([]T, 0)
	if err := q.apply(t.session(ctx)).Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (t *Table[T]) Count(ctx context.Context, q Query) (int64, error) {
	if err := q.Err(); err != nil {
		return 0, err
	}
	var n int64
	if err := q.Unpaged().apply(t.session(ctx)).Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (t *Table[T]) Append(ctx context.Context, record *T) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return translate(t.db.WithContext(ctx).Create(record).Error)
}

func (t *Table[T]) Update(ctx context.Context, q Query, fields map[string]any) (int64, error) {
	if err := q.Err(); err != nil {
		return 0, err
	}
	if !q.HasConditions() {
		return 0, errUnconditionalUpdate
	}
	res := q.Unpaged().apply(t.session(ctx)).Updates(fields)
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}
