package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/adapter"
	"formative-compliance/internal/domain/ports/repository"
	"formative-compliance/internal/infra/logging"
	"formative-compliance/internal/infra/metrics"
)

// Compile-time check
var _ DocumentUseCase = (*documentUC)(nil)

type DocumentUseCase interface {
	List(ctx context.Context, userID string, offset, limit int) ([]*model.Document, error)
	// Download checks ownership, records the download and returns a short-lived URL.
	Download(ctx context.Context, req DownloadRequest) (*DownloadLink, error)
	// Delete soft-deletes the document and releases the quota it consumed.
	Delete(ctx context.Context, userID, documentID string) error
	Stats(ctx context.Context, userID string) (*model.DocumentStats, error)
	Activity(ctx context.Context, userID string, limit int) ([]*model.Activity, error)
}

type DownloadRequest struct {
	UserID     string
	DocumentID string
	IPAddress  string
	UserAgent  string
}

type DownloadLink struct {
	URL         string          `json:"url"`
	FileName    string          `json:"fileName"`
	ContentType string          `json:"contentType"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	Document    *model.Document `json:"document"`
}

type documentUC struct {
	docs       repository.DocumentRepository
	downloads  repository.DownloadRepository
	activity   repository.ActivityRepository
	usage      repository.UsageRepository
	storage    adapter.ObjectStorage
	tm         repository.TransactionManager
	presignTTL time.Duration
	now        func() time.Time
	log        *zerolog.Logger
}

func NewDocumentUseCase(
	docs repository.DocumentRepository,
	downloads repository.DownloadRepository,
	activity repository.ActivityRepository,
	usage repository.UsageRepository,
	storage adapter.ObjectStorage,
	tm repository.TransactionManager,
	presignTTL time.Duration,
	logger *zerolog.Logger,
) *documentUC {
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	return &documentUC{
		docs:       docs,
		downloads:  downloads,
		activity:   activity,
		usage:      usage,
		storage:    storage,
		tm:         tm,
		presignTTL: presignTTL,
		now:        time.Now,
		log:        logger,
	}
}

func (u *documentUC) List(ctx context.Context, userID string, offset, limit int) ([]*model.Document, error) {
	defer logging.TraceDuration(u.log, "DocumentUC.List")()
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	docs, err := u.docs.ListByUser(ctx, repository.NoTX, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*model.Document{}
	}
	return docs, nil
}

// owned returns ErrNotFound for another user's document so ids cannot be probed.
func (u *documentUC) owned(ctx context.Context, tx repository.Tx, userID, documentID string) (*model.Document, error) {
	d, err := u.docs.FindByID(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (u *documentUC) Download(ctx context.Context, req DownloadRequest) (*DownloadLink, error) {
	defer logging.TraceDuration(u.log, "DocumentUC.Download")()

	d, err := u.owned(ctx, repository.NoTX, req.UserID, req.DocumentID)
	if err != nil {
		return nil, err
	}

	typ := model.DownloadInitial
	if d.DownloadCount > 0 {
		typ = model.DownloadRedownload
	}
	now := u.now()
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.downloads.Save(ctx, tx, &model.Download{
			ID:         uuid.NewString(),
			UserID:     req.UserID,
			DocumentID: d.ID,
			Type:       typ,
			IPAddress:  req.IPAddress,
			UserAgent:  req.UserAgent,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		return u.docs.IncrementDownloads(ctx, tx, d.ID)
	})
	if err != nil {
		return nil, err
	}
	d.DownloadCount++
	metrics.IncDocumentDownload(string(typ))

	url, err := u.storage.PresignGet(ctx, d.StorageKey, u.presignTTL)
	if err != nil {
		return nil, err
	}

	if err := u.activity.Save(ctx, repository.NoTX, &model.Activity{
		ID:     uuid.NewString(),
		UserID: req.UserID,
		Type:   model.ActivityDocumentDownloaded,
		Details: map[string]any{
			"documentId":   d.ID,
			"documentType": d.DocumentType,
			"downloadType": string(typ),
		},
		CreatedAt: now,
	}); err != nil {
		u.log.Warn().Err(err).Str("user_id", req.UserID).Str("document_id", d.ID).Msg("download activity not recorded")
	}

	return &DownloadLink{
		URL:         url,
		FileName:    fileNameFor(d),
		ContentType: d.Format.ContentType(),
		ExpiresAt:   now.Add(u.presignTTL),
		Document:    d,
	}, nil
}

func (u *documentUC) Delete(ctx context.Context, userID, documentID string) error {
	defer logging.TraceDuration(u.log, "DocumentUC.Delete")()

	now := u.now()
	var key string
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		d, err := u.owned(ctx, tx, userID, documentID)
		if err != nil {
			return err
		}
		key = d.StorageKey
		if err := u.docs.SoftDelete(ctx, tx, d.ID, now); err != nil {
			return err
		}
		return u.usage.SoftDeleteByDocument(ctx, tx, userID, d.ID, now)
	})
	if err != nil {
		return err
	}
	// the row is the source of truth; a stale object is only wasted space
	if err := u.storage.Delete(ctx, key); err != nil {
		u.log.Warn().Err(err).Str("key", key).Msg("delete stored document failed")
	}
	return nil
}

func (u *documentUC) Stats(ctx context.Context, userID string) (*model.DocumentStats, error) {
	defer logging.TraceDuration(u.log, "DocumentUC.Stats")()
	return u.docs.Stats(ctx, repository.NoTX, userID, model.MonthStart(u.now()))
}

func (u *documentUC) Activity(ctx context.Context, userID string, limit int) ([]*model.Activity, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out, err := u.activity.ListByUser(ctx, repository.NoTX, userID, limit)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if out == nil {
		out = []*model.Activity{}
	}
	return out, nil
}

func fileNameFor(d *model.Document) string {
	name := make([]rune, 0, len(d.Title))
	for _, r := range d.Title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			name = append(name, r)
		default:
			name = append(name, '_')
		}
	}
	return string(name) + "." + d.Format.Extension()
}
