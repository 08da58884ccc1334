package documents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgpagination "github.com/hopl-labs/hopl-backend/pkg/pagination"
)

// Repository persists generated documents and generation attempts.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateAttempt stores a new attempt in REQUESTED.
func (r *Repository) CreateAttempt(ctx context.Context, attempt *models.GenerationAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(attempt).Error
}

// attemptUpdate lists the columns a transition may change.
type attemptUpdate struct {
	status      enums.GenerationStatus
	charged     *bool
	refunded    *bool
	documentID  *uuid.UUID
	failureCode *string
}

// TransitionAttempt moves an attempt from one status to the next. The WHERE on
// the current status keeps concurrent writers from skipping a state.
func (r *Repository) TransitionAttempt(tx *gorm.DB, id uuid.UUID, from enums.GenerationStatus, update attemptUpdate) (int64, error) {
	values := map[string]any{
		"status":     update.status,
		"updated_at": time.Now().UTC(),
	}
	if update.charged != nil {
		values["charged"] = *update.charged
	}
	if update.refunded != nil {
		values["refunded"] = *update.refunded
	}
	if update.documentID != nil {
		values["document_id"] = *update.documentID
	}
	if update.failureCode != nil {
		values["failure_code"] = *update.failureCode
	}
	res := tx.Model(&models.GenerationAttempt{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return res.RowsAffected, res.Error
}

// FindAttempt loads an attempt by id.
func (r *Repository) FindAttempt(ctx context.Context, id uuid.UUID) (*models.GenerationAttempt, error) {
	var attempt models.GenerationAttempt
	if err := r.db.WithContext(ctx).First(&attempt, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// CreateDocumentTx inserts a generated document inside tx.
func (r *Repository) CreateDocumentTx(tx *gorm.DB, doc *models.GeneratedDocument) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	return tx.Create(doc).Error
}

// FindDocument loads a document owned by userID.
func (r *Repository) FindDocument(ctx context.Context, userID, id uuid.UUID) (*models.GeneratedDocument, error) {
	var doc models.GeneratedDocument
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

type listQuery struct {
	userID uuid.UUID
	limit  int
	cursor *pkgpagination.Cursor
}

// List returns documents of one account, newest first, starting after cursor.
func (r *Repository) List(ctx context.Context, opts listQuery) ([]models.GeneratedDocument, error) {
	query := r.db.WithContext(ctx).Model(&models.GeneratedDocument{}).Where("user_id = ?", opts.userID)

	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.limit)

	var rows []models.GeneratedDocument
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindStalledAttempts returns attempts stuck short of a terminal state since
// before cutoff, oldest first.
func (r *Repository) FindStalledAttempts(ctx context.Context, cutoff time.Time, limit int) ([]models.GenerationAttempt, error) {
	var rows []models.GenerationAttempt
	err := r.db.WithContext(ctx).
		Where("status IN ?", []enums.GenerationStatus{
			enums.GenerationRequested,
			enums.GenerationAuthorized,
			enums.GenerationAssembling,
		}).
		Where("updated_at < ?", cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
