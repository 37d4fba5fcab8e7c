package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Document is one stored path node.
type Document struct {
	Path      string `gorm:"primaryKey;size:512"`
	Doc       []byte `gorm:"not null"`
	UpdatedAt time.Time
}

// SQLStore persists the document tree in SQLite through GORM, one row per
// written path. Change subscriptions are served by an in-process hub, so
// push delivery covers every writer sharing this store instance.
type SQLStore struct {
	db  *gorm.DB
	hub *changeHub
}

// NewSQLStore opens (and migrates) the SQLite database at dsn.
func NewSQLStore(dsn string, log *slog.Logger) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: &slogGormLogger{logger: log, level: logger.Warn},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return &SQLStore{db: db, hub: newChangeHub()}, nil
}

func (s *SQLStore) Read(ctx context.Context, path string) (json.RawMessage, error) {
	path = strings.Trim(path, "/")

	base, err := s.valueAt(ctx, path)
	if err != nil {
		return nil, err
	}

	var children []Document
	if err := s.db.WithContext(ctx).
		Where("path LIKE ?", path+"/%").
		Order("path").
		Find(&children).Error; err != nil {
		return nil, err
	}
	if base == nil && len(children) == 0 {
		return nil, nil
	}
	for _, child := range children {
		var value any
		if err := json.Unmarshal(child.Doc, &value); err != nil {
			return nil, err
		}
		m, ok := base.(map[string]any)
		if !ok {
			m = make(map[string]any)
			base = m
		}
		setTree(m, strings.Split(strings.TrimPrefix(child.Path, path+"/"), "/"), value)
	}
	return json.Marshal(base)
}

// valueAt resolves the document value for path: the exact row if one was
// written, otherwise a descent into the nearest ancestor row that covers
// the path.
func (s *SQLStore) valueAt(ctx context.Context, path string) (any, error) {
	segs := strings.Split(path, "/")
	for i := len(segs); i > 0; i-- {
		var row Document
		err := s.db.WithContext(ctx).First(&row, "path = ?", strings.Join(segs[:i], "/")).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var doc any
		if err := json.Unmarshal(row.Doc, &doc); err != nil {
			return nil, err
		}
		return descendTree(doc, segs[i:]), nil
	}
	return nil, nil
}

func (s *SQLStore) Write(ctx context.Context, path string, doc any) error {
	if doc == nil {
		return s.Remove(ctx, path)
	}
	path = strings.Trim(path, "/")
	value, err := normalizeValue(doc)
	if err != nil {
		return err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("path LIKE ?", path+"/%").Delete(&Document{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"doc", "updated_at"}),
		}).Create(&Document{Path: path, Doc: b, UpdatedAt: time.Now()}).Error
	})
	if err != nil {
		return err
	}
	s.hub.publish(path)
	return nil
}

func (s *SQLStore) Merge(ctx context.Context, path string, fields map[string]any) error {
	path = strings.Trim(path, "/")
	// The visible document may live inside an ancestor row, so resolve it
	// the same way Read does before layering the fields on top.
	visible, err := s.valueAt(ctx, path)
	if err != nil {
		return err
	}
	current, ok := visible.(map[string]any)
	if !ok {
		current = make(map[string]any)
	}
	for k, v := range fields {
		value, err := normalizeValue(v)
		if err != nil {
			return err
		}
		current[k] = value
	}
	b, err := json.Marshal(current)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"doc", "updated_at"}),
	}).Create(&Document{Path: path, Doc: b, UpdatedAt: time.Now()}).Error; err != nil {
		return err
	}
	s.hub.publish(path)
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, path string) error {
	path = strings.Trim(path, "/")
	segs := strings.Split(path, "/")
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("path = ? OR path LIKE ?", path, path+"/%").
			Delete(&Document{}).Error; err != nil {
			return err
		}
		// A copy of the value may also sit inside ancestor rows.
		for i := len(segs) - 1; i > 0; i-- {
			ancestor := strings.Join(segs[:i], "/")
			var row Document
			err := tx.First(&row, "path = ?", ancestor).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var doc any
			if err := json.Unmarshal(row.Doc, &doc); err != nil {
				return err
			}
			m, ok := doc.(map[string]any)
			if !ok || !pruneTree(m, segs[i:]) {
				continue
			}
			b, err := json.Marshal(m)
			if err != nil {
				return err
			}
			if err := tx.Model(&Document{}).Where("path = ?", ancestor).
				Updates(map[string]any{"doc": b, "updated_at": time.Now()}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.hub.publish(path)
	return nil
}

func (s *SQLStore) Subscribe(ctx context.Context, path string, onSnapshot SnapshotFunc, onError ErrorFunc) (UnsubscribeFunc, error) {
	return s.hub.subscribe(path, func() {
		doc, err := s.Read(ctx, path)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onSnapshot(doc)
	}), nil
}

func (s *SQLStore) GenerateID(_ context.Context, _ string) (string, error) {
	return uuid.NewString(), nil
}

// changeHub fans out path-change notifications to in-process subscribers,
// preserving per-subscriber order.
type changeHub struct {
	mu     sync.Mutex
	subs   map[int]*hubSub
	nextID int
}

type hubSub struct {
	path  string
	queue *snapshotQueue
}

func newChangeHub() *changeHub {
	return &changeHub{subs: make(map[int]*hubSub)}
}

func (h *changeHub) subscribe(path string, deliver func()) UnsubscribeFunc {
	sub := &hubSub{path: path, queue: newSnapshotQueue()}
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	// The queue carries only wake-ups here; the subscriber re-reads the
	// store on each one, so payloads are not materialized twice.
	go sub.queue.run(func(json.RawMessage) { deliver() })
	sub.queue.enqueue(nil)

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.queue.close()
	}
}

func (h *changeHub) publish(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if Within(sub.path, path) {
			sub.queue.enqueue(nil)
		}
	}
}

// slogGormLogger adapts GORM's logger interface onto slog.
type slogGormLogger struct {
	logger *slog.Logger
	level  logger.LogLevel
}

func (l *slogGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	copied := *l
	copied.level = level
	return &copied
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error {
		sql, rows := fc()
		l.logger.ErrorContext(ctx, "store query error",
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", time.Since(begin)),
			slog.String("error", err.Error()),
		)
	}
}
