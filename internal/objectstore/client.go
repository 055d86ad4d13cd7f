package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/shadowtc/screen-record-upload-be-sub001/internal/config"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/domain"
)

// ErrObjectNotFound indicates the object key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// Client exposes the subset of object-store functionality the upload service needs.
type Client interface {
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	UploadPart(ctx context.Context, uploadID, key string, partNumber int32, body io.Reader, size int64) (string, error)
	ListParts(ctx context.Context, uploadID, key string) ([]domain.PartRecord, error)
	CompleteMultipartUpload(ctx context.Context, uploadID, key string, parts []domain.CompletedPart) (string, error)
	AbortMultipartUpload(ctx context.Context, uploadID, key string) error
	HeadObject(ctx context.Context, key string) (domain.ObjectInfo, error)
	PresignUploadPart(ctx context.Context, uploadID, key string, partNumber int32, expiry time.Duration) (string, error)
	PresignGetObject(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// S3Client is the default implementation backed by an S3-compatible store.
type S3Client struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

// NewS3Client builds a client from static credentials, honoring a custom
// endpoint and path-style addressing for MinIO-compatible deployments.
func NewS3Client(ctx context.Context, cfg *config.Config) (*S3Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return &S3Client{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.S3Bucket,
	}, nil
}

// CreateMultipartUpload opens a multipart session and returns its upload id.
func (c *S3Client) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	out, err := c.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("create multipart upload: %w", err)
	}
	return aws.ToString(out.UploadId), nil
}

// UploadPart streams one part and returns the store-issued ETag.
func (c *S3Client) UploadPart(ctx context.Context, uploadID, key string, partNumber int32, body io.Reader, size int64) (string, error) {
	out, err := c.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("upload part %d: %w", partNumber, err)
	}
	return aws.ToString(out.ETag), nil
}

// ListParts returns every part uploaded so far for the session, following
// pagination so large sessions report completely.
func (c *S3Client) ListParts(ctx context.Context, uploadID, key string) ([]domain.PartRecord, error) {
	parts := make([]domain.PartRecord, 0)
	paginator := s3.NewListPartsPaginator(c.client, &s3.ListPartsInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list parts: %w", err)
		}
		for _, p := range page.Parts {
			parts = append(parts, domain.PartRecord{
				PartNumber: aws.ToInt32(p.PartNumber),
				ETag:       aws.ToString(p.ETag),
				SizeBytes:  aws.ToInt64(p.Size),
			})
		}
	}
	return parts, nil
}

// CompleteMultipartUpload finalizes the session and returns the final ETag.
// Parts must already be in ascending part-number order.
func (c *S3Client) CompleteMultipartUpload(ctx context.Context, uploadID, key string, parts []domain.CompletedPart) (string, error) {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		})
	}
	out, err := c.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(c.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", fmt.Errorf("complete multipart upload: %w", err)
	}
	return aws.ToString(out.ETag), nil
}

// AbortMultipartUpload discards the session and any parts already uploaded.
func (c *S3Client) AbortMultipartUpload(ctx context.Context, uploadID, key string) error {
	_, err := c.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}

// HeadObject reports the store-authoritative size and checksum of an object.
func (c *S3Client) HeadObject(ctx context.Context, key string) (domain.ObjectInfo, error) {
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return domain.ObjectInfo{}, ErrObjectNotFound
		}
		return domain.ObjectInfo{}, fmt.Errorf("head object: %w", err)
	}
	return domain.ObjectInfo{
		SizeBytes: aws.ToInt64(out.ContentLength),
		ETag:      aws.ToString(out.ETag),
	}, nil
}

// PresignUploadPart issues a pre-signed PUT URL for one part of the session.
func (c *S3Client) PresignUploadPart(ctx context.Context, uploadID, key string, partNumber int32, expiry time.Duration) (string, error) {
	req, err := c.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(c.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign part %d: %w", partNumber, err)
	}
	return req.URL, nil
}

// PresignGetObject issues a pre-signed download URL for an object.
func (c *S3Client) PresignGetObject(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return req.URL, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}
