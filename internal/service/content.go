package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/blockhub/internal/apperror"
	"github.com/sakif/blockhub/internal/model"
	"github.com/sakif/blockhub/internal/repository"
	"github.com/sakif/blockhub/internal/storage"
)

const (
	MaxTitleLength = 200
	MaxLinkLength  = 2048
	MaxIxIDLength  = 100
	MaxTags        = 20
	MaxTagLength   = 50
)

// downloadPath is where uploads are served from when the bucket has no
// public URL of its own.
const downloadPath = "/blocks/download/"

// ContentService holds the rules for maps and blocks. Every method takes the
// kind it operates on; the rules are the same for both.
type ContentService struct {
	repo   repository.ContentRepository
	files  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewContentService(repo repository.ContentRepository, files storage.Store, logger *slog.Logger) *ContentService {
	return &ContentService{
		repo:   repo,
		files:  files,
		logger: logger,
		now:    time.Now,
	}
}

// Upload is a file received with a request, already read into memory.
type Upload struct {
	Name        string // client-side file name
	ContentType string
	Data        []byte
}

type CreateInput struct {
	Title    string
	ViewLink string
	Image    string
	IxID     string
	Tags     []string
	File     *Upload
}

// UpdateInput carries a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Title    *string
	ViewLink *string
	Image    *string
	IxID     *string
	Tags     *[]string
}

func (s *ContentService) List(ctx context.Context, kind model.Kind) ([]model.Item, error) {
	items, err := s.repo.List(ctx, kind)
	if err != nil {
		s.logger.Error("failed to list items", slog.String("kind", string(kind)), slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing %ss: %w", kind, err)
	}
	return items, nil
}

// Search takes the raw query values; tags is comma separated.
func (s *ContentService) Search(ctx context.Context, kind model.Kind, title, author, tags string) ([]model.Item, error) {
	filter := model.SearchFilter{
		Title:  strings.TrimSpace(title),
		Author: strings.TrimSpace(author),
		Tags:   ParseTags(tags),
	}

	items, err := s.repo.Search(ctx, kind, filter)
	if err != nil {
		s.logger.Error("failed to search items", slog.String("kind", string(kind)), slog.String("error", err.Error()))
		return nil, fmt.Errorf("searching %ss: %w", kind, err)
	}
	return items, nil
}

func (s *ContentService) Get(ctx context.Context, kind model.Kind, id string) (*model.Item, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", kind.Label()+" ID is required")
	}
	return s.repo.GetByID(ctx, kind, id)
}

// Create validates the input, uploads the attached file if there is one and
// stores the item owned by author.
func (s *ContentService) Create(ctx context.Context, kind model.Kind, author *model.User, in CreateInput) (*model.Item, error) {
	if author == nil {
		return nil, apperror.Unauthorized("Not authenticated")
	}

	title := strings.TrimSpace(in.Title)
	viewLink := strings.TrimSpace(in.ViewLink)
	if title == "" || (viewLink == "" && in.File == nil) {
		return nil, apperror.ValidationFailed("title", "Missing required fields")
	}
	if err := validateFields(title, viewLink, strings.TrimSpace(in.Image), strings.TrimSpace(in.IxID)); err != nil {
		return nil, err
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	item := &model.Item{
		Kind:     kind,
		Title:    title,
		ViewLink: viewLink,
		Image:    strings.TrimSpace(in.Image),
		IxID:     strings.TrimSpace(in.IxID),
		Tags:     tags,
		AuthorID: author.ID,
	}

	if in.File != nil {
		obj, err := s.Upload(ctx, *in.File)
		if err != nil {
			return nil, err
		}
		item.FileName = obj.Name
		item.FileURL = obj.URL
	}

	if err := s.repo.Create(ctx, item); err != nil {
		s.logger.Error("failed to create item",
			slog.String("kind", string(kind)),
			slog.String("authorID", author.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating %s: %w", kind, err)
	}

	s.logger.Info("item created",
		slog.String("kind", string(kind)),
		slog.String("id", item.ID),
		slog.String("authorID", author.ID),
	)

	return s.repo.GetByID(ctx, kind, item.ID)
}

// Update applies a partial update. Only the author or an admin may change an
// item.
func (s *ContentService) Update(ctx context.Context, kind model.Kind, actor *model.User, id string, in UpdateInput) (*model.Item, error) {
	item, err := s.owned(ctx, kind, actor, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apperror.ValidationFailed("title", "title must not be empty")
		}
		item.Title = title
	}
	if in.ViewLink != nil {
		item.ViewLink = strings.TrimSpace(*in.ViewLink)
	}
	if in.Image != nil {
		item.Image = strings.TrimSpace(*in.Image)
	}
	if in.IxID != nil {
		item.IxID = strings.TrimSpace(*in.IxID)
	}
	if in.Tags != nil {
		tags, err := normalizeTags(*in.Tags)
		if err != nil {
			return nil, err
		}
		item.Tags = tags
	}
	if item.ViewLink == "" && item.FileName == "" {
		return nil, apperror.ValidationFailed("viewLink", "Missing required fields")
	}
	if err := validateFields(item.Title, item.ViewLink, item.Image, item.IxID); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, item); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update item",
			slog.String("kind", string(kind)),
			slog.String("id", item.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating %s: %w", kind, err)
	}

	s.logger.Info("item updated", slog.String("kind", string(kind)), slog.String("id", item.ID))
	return s.repo.GetByID(ctx, kind, item.ID)
}

// Delete removes an item, its tags and its votes. Only the author or an
// admin may delete.
func (s *ContentService) Delete(ctx context.Context, kind model.Kind, actor *model.User, id string) error {
	item, err := s.owned(ctx, kind, actor, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, kind, item.ID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to delete item",
			slog.String("kind", string(kind)),
			slog.String("id", item.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("deleting %s: %w", kind, err)
	}

	s.logger.Info("item deleted",
		slog.String("kind", string(kind)),
		slog.String("id", item.ID),
		slog.String("by", actor.ID),
	)
	return nil
}

// Vote records one up or down vote from voter. A user gets one vote per item.
func (s *ContentService) Vote(ctx context.Context, kind model.Kind, voter *model.User, id string, up bool) (*model.Item, error) {
	if voter == nil {
		return nil, apperror.Unauthorized("Not authenticated")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", kind.Label()+" ID is required")
	}

	item, err := s.repo.Vote(ctx, kind, id, voter.ID, up)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrAlreadyVoted) {
			return nil, err
		}
		s.logger.Error("failed to record vote",
			slog.String("kind", string(kind)),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("voting on %s: %w", kind, err)
	}

	s.logger.Info("vote recorded",
		slog.String("kind", string(kind)),
		slog.String("id", id),
		slog.String("userID", voter.ID),
		slog.Bool("up", up),
	)
	return item, nil
}

// Upload stores a file under a timestamped name and returns where it lives.
func (s *ContentService) Upload(ctx context.Context, up Upload) (storage.Object, error) {
	if len(up.Data) == 0 {
		return storage.Object{}, apperror.ValidationFailed("file", "file is required")
	}

	name := storage.ObjectName(up.Name, s.now())
	obj, err := s.files.Put(ctx, name, bytes.NewReader(up.Data), int64(len(up.Data)), up.ContentType)
	if err != nil {
		s.logger.Error("failed to upload file",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return storage.Object{}, fmt.Errorf("uploading file: %w", err)
	}
	if obj.URL == "" {
		obj.URL = downloadPath + obj.Name
	}

	s.logger.Info("file uploaded", slog.String("name", obj.Name), slog.Int("bytes", len(up.Data)))
	return obj, nil
}

// Download opens a stored file. The caller closes the reader.
func (s *ContentService) Download(ctx context.Context, name string) (*storage.Reader, error) {
	if !storage.ValidName(name) {
		return nil, apperror.NotFound("File", name)
	}

	r, err := s.files.Get(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperror.NotFound("File", name)
		}
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	return r, nil
}

// owned loads an item and checks that actor may modify it.
func (s *ContentService) owned(ctx context.Context, kind model.Kind, actor *model.User, id string) (*model.Item, error) {
	if actor == nil {
		return nil, apperror.Unauthorized("Not authenticated")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", kind.Label()+" ID is required")
	}

	item, err := s.repo.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanModify(item.AuthorID) {
		s.logger.Warn("modification refused",
			slog.String("kind", string(kind)),
			slog.String("id", id),
			slog.String("userID", actor.ID),
		)
		return nil, apperror.Forbidden("Not authorized")
	}
	return item, nil
}

// ParseTags splits a comma separated tag list, trimming and dropping empty
// or repeated entries.
func ParseTags(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	return dedupe(strings.Split(csv, ","))
}

func normalizeTags(tags []string) ([]string, error) {
	out := dedupe(tags)
	if len(out) > MaxTags {
		return nil, apperror.ValidationFailed("tags", fmt.Sprintf("at most %d tags are allowed", MaxTags))
	}
	for _, t := range out {
		if len(t) > MaxTagLength {
			return nil, apperror.ValidationFailed("tags", fmt.Sprintf("tags must be %d characters or less", MaxTagLength))
		}
	}
	return out, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func validateFields(title, viewLink, image, ixID string) error {
	if len(title) > MaxTitleLength {
		return apperror.ValidationFailed("title", fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if len(viewLink) > MaxLinkLength {
		return apperror.ValidationFailed("viewLink", fmt.Sprintf("viewLink must be %d characters or less", MaxLinkLength))
	}
	if len(image) > MaxLinkLength {
		return apperror.ValidationFailed("image", fmt.Sprintf("image must be %d characters or less", MaxLinkLength))
	}
	if len(ixID) > MaxIxIDLength {
		return apperror.ValidationFailed("ixId", fmt.Sprintf("ixId must be %d characters or less", MaxIxIDLength))
	}
	return nil
}
