package entries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

var (
	ErrNotFound = errors.New("entry not found")

	// ErrVersionConflict means another writer rewrote the links list between
	// our read and our write. Callers reload and retry.
	ErrVersionConflict = errors.New("entry link version conflict")
)

type Repo interface {
	Create(ctx context.Context, tx *gorm.DB, e *domain.Entry) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Entry, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]domain.Entry, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]domain.Entry, error)
	ListRecentByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int, exclude uuid.UUID) ([]domain.Entry, error)
	ListEmbeddedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]domain.Entry, error)
	ListUnembeddedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]domain.Entry, error)
	ListLinkingTo(ctx context.Context, tx *gorm.DB, userID, targetID uuid.UUID) ([]domain.Entry, error)
	UpdateContent(ctx context.Context, tx *gorm.DB, e *domain.Entry) error
	UpdateEmbedding(ctx context.Context, tx *gorm.DB, id uuid.UUID, embedding datatypes.JSON) error
	UpdateLinks(ctx context.Context, tx *gorm.DB, id uuid.UUID, links datatypes.JSON, loadedVersion int) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type repo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepo(db *gorm.DB, log *logger.Logger) Repo {
	return &repo{db: db, log: log.With("service", "EntriesRepo")}
}

func (r *repo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *repo) Create(ctx context.Context, tx *gorm.DB, e *domain.Entry) error {
	if e.Kind == "" {
		e.Kind = domain.EntryKindText
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("invalid entry kind %q", e.Kind)
	}
	if len(e.Tags) == 0 {
		e.Tags = datatypes.JSON([]byte("[]"))
	}
	if len(e.Links) == 0 {
		e.Links = datatypes.JSON([]byte("[]"))
	}
	return r.conn(tx).WithContext(ctx).Create(e).Error
}

func (r *repo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Entry, error) {
	var e domain.Entry
	err := r.conn(tx).WithContext(ctx).First(&e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]domain.Entry, error) {
	if len(ids) == 0 {
		return []domain.Entry{}, nil
	}
	var out []domain.Entry
	err := r.conn(tx).WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]domain.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Entry
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) ListRecentByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int, exclude uuid.UUID) ([]domain.Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	q := r.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit)
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	var out []domain.Entry
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) ListEmbeddedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]domain.Entry, error) {
	var out []domain.Entry
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ? AND embedding IS NOT NULL", userID).
		Order("created_at desc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) ListUnembeddedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]domain.Entry, error) {
	var out []domain.Entry
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ? AND embedding IS NULL", userID).
		Order("created_at asc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListLinkingTo finds the owner's entries whose links list references
// targetID. Postgres answers with jsonb containment; other dialects get a
// coarse LIKE prefilter that is tightened in memory.
func (r *repo) ListLinkingTo(ctx context.Context, tx *gorm.DB, userID, targetID uuid.UUID) ([]domain.Entry, error) {
	conn := r.conn(tx).WithContext(ctx)

	var out []domain.Entry
	if conn.Dialector.Name() == "postgres" {
		probe, err := json.Marshal([]map[string]string{{"target_id": targetID.String()}})
		if err != nil {
			return nil, err
		}
		err = conn.
			Where("user_id = ? AND links @> ?", userID, string(probe)).
			Find(&out).Error
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	var coarse []domain.Entry
	err := conn.
		Where("user_id = ? AND links LIKE ?", userID, "%"+targetID.String()+"%").
		Find(&coarse).Error
	if err != nil {
		return nil, err
	}
	for i := range coarse {
		if coarse[i].HasEdgeTo(targetID) {
			out = append(out, coarse[i])
		}
	}
	return out, nil
}

func (r *repo) UpdateContent(ctx context.Context, tx *gorm.DB, e *domain.Entry) error {
	res := r.conn(tx).WithContext(ctx).Model(&domain.Entry{}).
		Where("id = ?", e.ID).
		Updates(map[string]any{
			"title": e.Title,
			"body":  e.Body,
			"kind":  e.Kind,
			"tags":  e.Tags,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) UpdateEmbedding(ctx context.Context, tx *gorm.DB, id uuid.UUID, embedding datatypes.JSON) error {
	res := r.conn(tx).WithContext(ctx).Model(&domain.Entry{}).
		Where("id = ?", id).
		Update("embedding", embedding)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLinks writes the links list only if nobody else has since our read.
func (r *repo) UpdateLinks(ctx context.Context, tx *gorm.DB, id uuid.UUID, links datatypes.JSON, loadedVersion int) error {
	res := r.conn(tx).WithContext(ctx).Model(&domain.Entry{}).
		Where("id = ? AND link_version = ?", id, loadedVersion).
		Updates(map[string]any{
			"links":        links,
			"link_version": loadedVersion + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.conn(tx).WithContext(ctx).Model(&domain.Entry{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	res := r.conn(tx).WithContext(ctx).Delete(&domain.Entry{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
