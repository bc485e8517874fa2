package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"betclever/internal/blob"
	"betclever/internal/kv"
	"betclever/internal/logging"
	"betclever/internal/models"
	"betclever/internal/upload"
)

// readConcurrency caps parallel content reads per save.
const readConcurrency = 4

type Documents struct {
	kv          kv.Backend
	blobs       blob.Store
	now         func() time.Time
	log         logging.Logger
	maxFileSize int64
}

func (d *Documents) GetAll(ctx context.Context, userID string) (models.DocumentSet, error) {
	set, _, err := getJSON[models.DocumentSet](ctx, d.kv, nsDocuments, userID)
	return set, err
}

// SaveAll replaces the whole collection of userID. File contents are read
// concurrently; if any read fails nothing is written and the previous
// collection stays in place.
func (d *Documents) SaveAll(ctx context.Context, userID string, identity, card, bank []upload.File) (models.DocumentSet, error) {
	set, err := d.materialize(ctx, userID, map[models.Bucket][]upload.File{
		models.BucketIdentity: identity,
		models.BucketCard:     card,
		models.BucketBank:     bank,
	})
	if err != nil {
		return models.DocumentSet{}, err
	}
	old, _, oldErr := getJSON[models.DocumentSet](ctx, d.kv, nsDocuments, userID)
	if err := putJSON(ctx, d.kv, nsDocuments, userID, set, kv.AnyVersion); err != nil {
		d.discard(ctx, set.All())
		return models.DocumentSet{}, err
	}
	if oldErr == nil {
		d.discard(ctx, unreferenced(old.All(), set))
	}
	return set, nil
}

// ReplaceBuckets replaces only the buckets present in files and keeps the
// others as stored.
func (d *Documents) ReplaceBuckets(ctx context.Context, userID string, files map[models.Bucket][]upload.File) (models.DocumentSet, error) {
	for b := range files {
		if (&models.DocumentSet{}).Bucket(b) == nil {
			return models.DocumentSet{}, fmt.Errorf("%w: %q", ErrUnknownBucket, b)
		}
	}
	fresh, err := d.materialize(ctx, userID, files)
	if err != nil {
		return models.DocumentSet{}, err
	}
	var replaced []models.Document
	for attempt := 0; attempt < mutateAttempts; attempt++ {
		cur, version, err := getJSON[models.DocumentSet](ctx, d.kv, nsDocuments, userID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			d.discard(ctx, fresh.All())
			return models.DocumentSet{}, err
		}
		replaced = replaced[:0]
		next := cur
		for b := range files {
			replaced = append(replaced, *cur.Bucket(b)...)
			*next.Bucket(b) = *fresh.Bucket(b)
		}
		err = putJSON(ctx, d.kv, nsDocuments, userID, next, version)
		if errors.Is(err, kv.ErrVersionConflict) {
			continue
		}
		if err != nil {
			d.discard(ctx, fresh.All())
			return models.DocumentSet{}, err
		}
		d.discard(ctx, unreferenced(replaced, next))
		return next, nil
	}
	d.discard(ctx, fresh.All())
	return models.DocumentSet{}, ErrConflict
}

func (d *Documents) materialize(ctx context.Context, userID string, files map[models.Bucket][]upload.File) (models.DocumentSet, error) {
	var set models.DocumentSet
	for _, b := range models.Buckets {
		if _, ok := files[b]; ok {
			*set.Bucket(b) = make([]models.Document, len(files[b]))
		} else {
			*set.Bucket(b) = []models.Document{}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for b, list := range files {
		dst := *set.Bucket(b)
		for i, f := range list {
			g.Go(func() error {
				doc, err := d.toDocument(gctx, userID, f)
				if err != nil {
					return fmt.Errorf("read %s: %w", f.Name, err)
				}
				dst[i] = doc
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		d.discard(ctx, set.All())
		return models.DocumentSet{}, err
	}
	return set, nil
}

func (d *Documents) toDocument(ctx context.Context, userID string, f upload.File) (models.Document, error) {
	data, err := f.ReadAll(d.maxFileSize)
	if err != nil {
		return models.Document{}, err
	}
	ref, err := d.blobs.Put(ctx, userID, f.Name, f.Type, data)
	if err != nil {
		return models.Document{}, err
	}
	return models.Document{
		FileName:   f.Name,
		FileType:   f.Type,
		FileSize:   int64(len(data)),
		UploadDate: d.now().UTC(),
		Content:    ref,
	}, nil
}

func (d *Documents) Get(ctx context.Context, userID string, b models.Bucket, index int) (models.Document, error) {
	set, err := d.GetAll(ctx, userID)
	if err != nil {
		return models.Document{}, err
	}
	list := set.Bucket(b)
	if list == nil {
		return models.Document{}, fmt.Errorf("%w: %q", ErrUnknownBucket, b)
	}
	if index < 0 || index >= len(*list) {
		return models.Document{}, ErrIndexOutOfRange
	}
	return (*list)[index], nil
}

// DeleteOne removes exactly one document, keeping the order of the rest.
func (d *Documents) DeleteOne(ctx context.Context, userID string, b models.Bucket, index int) (models.Document, error) {
	var removed models.Document
	_, err := mutate(ctx, d.kv, nsDocuments, userID, func(set *models.DocumentSet) error {
		list := set.Bucket(b)
		if list == nil {
			return fmt.Errorf("%w: %q", ErrUnknownBucket, b)
		}
		if index < 0 || index >= len(*list) {
			return ErrIndexOutOfRange
		}
		removed = (*list)[index]
		next := make([]models.Document, 0, len(*list)-1)
		next = append(next, (*list)[:index]...)
		*list = append(next, (*list)[index+1:]...)
		return nil
	})
	if err != nil {
		return models.Document{}, err
	}
	d.discard(ctx, []models.Document{removed})
	return removed, nil
}

// Content returns the bytes and content type of doc.
func (d *Documents) Content(ctx context.Context, doc models.Document) ([]byte, string, error) {
	data, ct, err := blob.Resolve(ctx, d.blobs, doc.Content)
	if err != nil {
		return nil, "", err
	}
	if ct == "" {
		ct = doc.FileType
	}
	return data, ct, nil
}

// Purge removes the collection of userID and its stored content.
func (d *Documents) Purge(ctx context.Context, userID string) error {
	set, err := d.GetAll(ctx, userID)
	if err != nil {
		return err
	}
	if err := deleteKey(ctx, d.kv, nsDocuments, userID); err != nil {
		return err
	}
	d.discard(ctx, set.All())
	return nil
}

// discard drops externally stored content; failures only leave orphans.
func (d *Documents) discard(ctx context.Context, docs []models.Document) {
	for _, doc := range docs {
		if doc.Content == "" || blob.IsInline(doc.Content) {
			continue
		}
		if err := d.blobs.Delete(ctx, doc.Content); err != nil {
			d.log.Warn(ctx, "discard document content", "ref", doc.Content, "err", err)
		}
	}
}

func unreferenced(docs []models.Document, keep models.DocumentSet) []models.Document {
	live := map[string]struct{}{}
	for _, doc := range keep.All() {
		live[doc.Content] = struct{}{}
	}
	out := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		if _, ok := live[doc.Content]; !ok {
			out = append(out, doc)
		}
	}
	return out
}
