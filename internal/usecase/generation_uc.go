package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"formative-compliance/internal/catalog"
	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/adapter"
	"formative-compliance/internal/domain/ports/repository"
	"formative-compliance/internal/infra/logging"
	"formative-compliance/internal/infra/metrics"
)

// Compile-time check
var _ GenerationUseCase = (*generationUC)(nil)

// DocumentCatalog is the subset of the catalog generation needs.
type DocumentCatalog interface {
	Industry(id string) (*catalog.Industry, error)
	Validate(industryID, packID string, docIDs []string, f model.Format) ([]catalog.Document, error)
}

type GenerationUseCase interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

type GenerateRequest struct {
	UserID      string             `json:"-"`
	IndustryID  string             `json:"industry"`
	PackID      string             `json:"pack"`
	DocumentIDs []string           `json:"documents"`
	Format      string             `json:"format"`
	Business    model.BusinessInfo `json:"businessInfo"`
}

// GenerationFailure reports a document that could not be produced. Failed documents do
// not consume quota.
type GenerationFailure struct {
	DocumentType string `json:"documentType"`
	Error        string `json:"error"`
}

type GenerateResult struct {
	Documents []*model.Document      `json:"documents"`
	Failed    []GenerationFailure    `json:"failed,omitempty"`
	Permit    model.GenerationPermit `json:"permit"`
}

// QuotaError is returned when the permit does not cover the request.
type QuotaError struct {
	Permit    model.GenerationPermit
	Requested int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: requested %d, remaining %d of %d", domain.ErrQuotaExceeded, e.Requested, e.Permit.Remaining, e.Permit.Limit)
}

func (e *QuotaError) Unwrap() error { return domain.ErrQuotaExceeded }

type GenerationConfig struct {
	Model           string
	MaxPromptTokens int
	MinContentChars int
	// SerializePerUser holds a per-user lock across evaluate and commit.
	SerializePerUser bool
	LockTTL          time.Duration
}

type generationUC struct {
	catalog      DocumentCatalog
	entitlements EntitlementUseCase
	ai           adapter.AIServiceAdapter
	renderers    map[model.Format]adapter.DocumentRenderer
	storage      adapter.ObjectStorage
	docs         repository.DocumentRepository
	activity     repository.ActivityRepository
	queue        adapter.TaskQueue
	locker       adapter.Locker
	cfg          GenerationConfig
	now          func() time.Time
	log          *zerolog.Logger
}

func NewGenerationUseCase(
	cat DocumentCatalog,
	entitlements EntitlementUseCase,
	ai adapter.AIServiceAdapter,
	renderers []adapter.DocumentRenderer,
	storage adapter.ObjectStorage,
	docs repository.DocumentRepository,
	activity repository.ActivityRepository,
	queue adapter.TaskQueue,
	locker adapter.Locker,
	cfg GenerationConfig,
	logger *zerolog.Logger,
) *generationUC {
	if cfg.MinContentChars <= 0 {
		cfg.MinContentChars = 500
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	byFormat := make(map[model.Format]adapter.DocumentRenderer, len(renderers))
	for _, r := range renderers {
		byFormat[r.Format()] = r
	}
	return &generationUC{
		catalog:      cat,
		entitlements: entitlements,
		ai:           ai,
		renderers:    byFormat,
		storage:      storage,
		docs:         docs,
		activity:     activity,
		queue:        queue,
		locker:       locker,
		cfg:          cfg,
		now:          time.Now,
		log:          logger,
	}
}

func (u *generationUC) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	defer logging.TraceDuration(u.log, "GenerationUC.Generate")()

	if req.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	format, err := model.ParseFormat(req.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: format must be pdf or docx", domain.ErrInvalidArgument)
	}
	if err := req.Business.Validate(); err != nil {
		return nil, fmt.Errorf("%w: businessName and state are required", err)
	}
	wanted, err := u.catalog.Validate(req.IndustryID, req.PackID, req.DocumentIDs, format)
	if err != nil {
		return nil, err
	}
	renderer, ok := u.renderers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFormatNotAvailable, format)
	}
	industryLabel := req.IndustryID
	if ind, err := u.catalog.Industry(req.IndustryID); err == nil && ind.Label != "" {
		industryLabel = ind.Label
	}

	if !u.entitlements.AllowsPack(ctx, req.UserID, req.IndustryID, req.PackID) {
		return nil, domain.ErrPackAccessDenied
	}

	if u.cfg.SerializePerUser && u.locker != nil {
		key := generationLockKey(req.UserID)
		token, err := u.locker.TryLock(ctx, key, u.cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				u.log.Warn().Err(err).Str("user_id", req.UserID).Msg("release generation lock failed")
			}
		}()
	}

	permit := u.entitlements.Evaluate(ctx, req.UserID)
	if !permit.CanGenerate || (!permit.IsUnlimited() && len(wanted) > permit.Remaining) {
		return nil, &QuotaError{Permit: permit, Requested: len(wanted)}
	}

	res := &GenerateResult{Documents: []*model.Document{}}
	for _, d := range wanted {
		doc, err := u.generateOne(ctx, req, d, industryLabel, format, renderer)
		if err != nil {
			u.log.Error().Err(err).Str("user_id", req.UserID).Str("document_type", d.ID).
				Str("op", "GenerationUC.Generate").Msg("document generation failed")
			res.Failed = append(res.Failed, GenerationFailure{DocumentType: d.ID, Error: publicError(err)})
			if ctx.Err() != nil {
				break
			}
			continue
		}
		res.Documents = append(res.Documents, doc)
	}

	res.Permit = u.entitlements.Evaluate(ctx, req.UserID)
	if len(res.Documents) == 0 && len(res.Failed) > 0 {
		return res, fmt.Errorf("%w: no documents generated", domain.ErrOperationFailed)
	}
	return res, nil
}

func (u *generationUC) generateOne(
	ctx context.Context,
	req GenerateRequest,
	d catalog.Document,
	industryLabel string,
	format model.Format,
	renderer adapter.DocumentRenderer,
) (doc *model.Document, err error) {
	start := u.now()
	docID := ulid.Make().String()
	u.record(req.UserID, model.ActivityGenerationStarted, map[string]any{
		"documentId":   docID,
		"documentType": d.ID,
		"industry":     req.IndustryID,
		"pack":         req.PackID,
		"format":       string(format),
		"businessName": req.Business.BusinessName,
	})
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
			u.record(req.UserID, model.ActivityGenerationFailed, map[string]any{
				"documentId":   docID,
				"documentType": d.ID,
				"industry":     req.IndustryID,
				"error":        err.Error(),
			})
		}
		metrics.ObserveGeneration(status, string(format), time.Since(start).Seconds())
	}()

	content, err := u.writeContent(ctx, d.Title, industryLabel, req.Business)
	if err != nil {
		return nil, err
	}

	title := documentTitle(d.Title, req.Business)
	var buf bytes.Buffer
	if err := renderer.Render(&buf, adapter.RenderInput{
		Title:    title,
		Body:     content,
		Business: req.Business,
		Industry: industryLabel,
	}); err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}

	key := model.StorageKeyFor(req.UserID, docID, format)
	obj, err := u.storage.Put(ctx, key, format.ContentType(), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	doc = &model.Document{
		ID:           docID,
		UserID:       req.UserID,
		IndustryID:   req.IndustryID,
		PackID:       req.PackID,
		DocumentType: d.ID,
		Title:        title,
		Format:       format,
		StorageKey:   obj.Key,
		SizeBytes:    obj.Size,
		Business:     req.Business,
		CreatedAt:    u.now(),
	}
	if err := u.docs.Save(ctx, repository.NoTX, doc); err != nil {
		if derr := u.storage.Delete(context.WithoutCancel(ctx), key); derr != nil {
			u.log.Warn().Err(derr).Str("key", key).Msg("orphaned object after failed save")
		}
		return nil, fmt.Errorf("save document: %w", err)
	}

	u.entitlements.Commit(ctx, req.UserID, docID)

	u.record(req.UserID, model.ActivityGenerationCompleted, map[string]any{
		"documentId":    docID,
		"documentType":  d.ID,
		"industry":      req.IndustryID,
		"format":        string(format),
		"fileSize":      obj.Size,
		"contentLength": len(content),
	})
	return doc, nil
}

func (u *generationUC) writeContent(ctx context.Context, docTitle, industry string, b model.BusinessInfo) (string, error) {
	msgs := buildPrompt(docTitle, industry, b)
	modelName := u.cfg.Model
	if modelName == "" {
		modelName = u.ai.DefaultModel()
	}

	if u.cfg.MaxPromptTokens > 0 {
		n, err := u.ai.CountTokens(ctx, modelName, msgs)
		if err != nil {
			// counting is advisory; the provider enforces its own context window
			u.log.Debug().Err(err).Str("model", modelName).Msg("prompt token count unavailable")
		} else if n > u.cfg.MaxPromptTokens {
			metrics.PrecheckBlocked(u.ai.Provider(), modelName)
			return "", fmt.Errorf("%w: prompt too long (%d tokens)", domain.ErrInvalidArgument, n)
		}
	}

	started := time.Now()
	content, usage, err := u.ai.ChatWithUsage(ctx, modelName, msgs)
	metrics.ObserveChatUsage(u.ai.Provider(), modelName, usage.PromptTokens, usage.CompletionTokens,
		time.Since(started).Milliseconds(), err == nil)
	if err != nil {
		return "", fmt.Errorf("ai: %w", err)
	}
	content = strings.TrimSpace(content)
	if len(content) < u.cfg.MinContentChars {
		return "", fmt.Errorf("%w: %d characters", domain.ErrContentTooShort, len(content))
	}
	return content, nil
}

// record writes an activity event in the background; failures only reach the log.
func (u *generationUC) record(userID string, typ model.ActivityType, details map[string]any) {
	if u.queue == nil || u.activity == nil {
		return
	}
	a := &model.Activity{ID: uuid.NewString(), UserID: userID, Type: typ, Details: details, CreatedAt: u.now()}
	err := u.queue.Submit(func(ctx context.Context) error {
		return u.activity.Save(ctx, repository.NoTX, a)
	})
	if err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Str("activity", string(typ)).Msg("activity dropped")
	}
}

func generationLockKey(userID string) string {
	return "lock:generate:" + userID
}

// publicError hides provider and storage details from API clients.
func publicError(err error) string {
	switch {
	case errors.Is(err, domain.ErrContentTooShort):
		return "generated content was incomplete"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "request too large for the document writer"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "generation timed out"
	}
	return "document generation failed"
}
