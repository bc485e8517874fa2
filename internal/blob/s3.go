package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) S3API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3API is the subset of *s3.Client the store needs.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type S3 struct {
	client S3API
	bucket string
	now    func() time.Time
}

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// minio and friends serve buckets by path
			o.UsePathStyle = true
		}
	})
	return NewS3WithClient(client, cfg.Bucket), nil
}

func NewS3WithClient(client S3API, bucket string) *S3 {
	return &S3{client: client, bucket: bucket, now: time.Now}
}

// StorageKey lays objects out per owner and upload day.
func (s *S3) StorageKey(owner string) string {
	d := s.now().UTC()
	return fmt.Sprintf("users/%s/%d/%d/%d/%v", owner, d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *S3) Put(ctx context.Context, owner, fileName, contentType string, data []byte) (string, error) {
	key := s.StorageKey(owner)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      map[string]string{"file-name": fileName},
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

func (s *S3) Get(ctx context.Context, ref string) ([]byte, string, error) {
	if IsInline(ref) {
		return DecodeDataURL(ref)
	}
	bucket, key, err := ParseS3Ref(ref)
	if err != nil {
		return nil, "", err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, "", fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read object: %w", err)
	}
	return data, aws.ToString(out.ContentType), nil
}

func (s *S3) Delete(ctx context.Context, ref string) error {
	if IsInline(ref) {
		return nil
	}
	bucket, key, err := ParseS3Ref(ref)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func ParseS3Ref(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, "s3://")
	if !ok {
		return "", "", ErrBadRef
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", ErrBadRef
	}
	return bucket, key, nil
}
