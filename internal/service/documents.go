package service

import (
	"context"
	"errors"
	"fmt"

	"betclever/internal/events"
	"betclever/internal/models"
	"betclever/internal/store"
	"betclever/internal/upload"
)

type UploadResult struct {
	Documents map[models.Bucket][]models.DocumentMeta `json:"documents"`
	Rejected  []upload.Rejection                      `json:"rejected"`
}

// UploadDocuments filters the files of each bucket and replaces the buckets
// that received at least one accepted file. Buckets absent from the upload
// stay as they are.
func (s *Service) UploadDocuments(ctx context.Context, userID string, files map[models.Bucket][]upload.File) (UploadResult, error) {
	if _, _, err := s.editable(ctx, userID); err != nil {
		return UploadResult{}, err
	}
	accepted := make(map[models.Bucket][]upload.File, len(files))
	rejected := make([]upload.Rejection, 0)
	for raw, list := range files {
		b, err := parseBucket(string(raw))
		if err != nil {
			return UploadResult{}, err
		}
		ok, bad := upload.Filter(list, s.cfg.UploadMaxFileBytes)
		rejected = append(rejected, bad...)
		if len(ok) > 0 {
			accepted[b] = append(accepted[b], ok...)
		}
	}
	s.metrics.ObserveRejectedDocuments(len(rejected))

	if len(accepted) == 0 {
		set, err := s.Documents(ctx, userID)
		if err != nil {
			return UploadResult{}, err
		}
		return UploadResult{Documents: set.Meta(), Rejected: rejected}, nil
	}
	set, err := s.st.Documents.ReplaceBuckets(ctx, userID, accepted)
	if err != nil {
		return UploadResult{}, err
	}
	for b, list := range accepted {
		s.metrics.ObserveDocuments(string(b), len(list))
	}
	s.publish(ctx, events.DocumentsSaved, userID)
	return UploadResult{Documents: set.Meta(), Rejected: rejected}, nil
}

// Documents returns the collection of userID, empty when nothing was uploaded.
func (s *Service) Documents(ctx context.Context, userID string) (models.DocumentSet, error) {
	set, err := s.st.Documents.GetAll(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.DocumentSet{}, nil
	}
	return set, err
}

func parseBucket(raw string) (models.Bucket, error) {
	b, err := models.ParseBucket(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", store.ErrUnknownBucket, raw)
	}
	return b, nil
}

// DocumentContent loads one document with its bytes for preview or download.
func (s *Service) DocumentContent(ctx context.Context, userID, bucket string, index int) (models.Document, []byte, string, error) {
	b, err := parseBucket(bucket)
	if err != nil {
		return models.Document{}, nil, "", err
	}
	doc, err := s.st.Documents.Get(ctx, userID, b, index)
	if err != nil {
		return models.Document{}, nil, "", err
	}
	data, ct, err := s.st.Documents.Content(ctx, doc)
	if err != nil {
		return models.Document{}, nil, "", err
	}
	return doc, data, ct, nil
}

func (s *Service) DeleteDocument(ctx context.Context, userID, bucket string, index int) (models.Document, error) {
	b, err := parseBucket(bucket)
	if err != nil {
		return models.Document{}, err
	}
	doc, err := s.st.Documents.DeleteOne(ctx, userID, b, index)
	if err != nil {
		return models.Document{}, err
	}
	s.publish(ctx, events.DocumentDeleted, userID)
	return doc, nil
}
