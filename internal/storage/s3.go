package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oranjParker/Pawmap/internal/config"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const DefaultPartSize = 100 << 20

// MultipartAPI is the part of the S3 client the uploader calls.
type MultipartAPI interface {
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, opts ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, opts ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "load aws config")
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

type Uploader struct {
	Client   MultipartAPI
	Bucket   string
	PartSize int64
	logger   *zap.Logger
}

func NewUploader(client MultipartAPI, bucket string, partSize int64, logger *zap.Logger) *Uploader {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{Client: client, Bucket: bucket, PartSize: partSize, logger: logger.Named("s3")}
}

// Upload streams body to key as a multipart upload in PartSize chunks. A
// failed upload is aborted so no orphaned parts are billed.
func (u *Uploader) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	in := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(u.Bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	created, err := u.Client.CreateMultipartUpload(ctx, in)
	if err != nil {
		return eris.Wrapf(err, "create multipart upload for %s", key)
	}
	uploadID := created.UploadId

	parts, err := u.uploadParts(ctx, key, uploadID, body)
	if err == nil {
		_, err = u.Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(u.Bucket),
			Key:             aws.String(key),
			UploadId:        uploadID,
			MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
		})
		if err != nil {
			err = eris.Wrapf(err, "complete multipart upload for %s", key)
		}
	}
	if err == nil {
		return nil
	}

	// abort even when ctx was cancelled mid upload
	_, abortErr := u.Client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.Bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
	if abortErr != nil {
		u.logger.Warn("abort multipart upload failed", zap.String("key", key), zap.Error(abortErr))
	}
	return err
}

// partBuffer sizes the read buffer: bodies that know their length never get
// more than they hold.
func partBuffer(body io.Reader, partSize int64) int64 {
	if l, ok := body.(interface{ Len() int }); ok && int64(l.Len()) < partSize {
		return int64(l.Len())
	}
	return partSize
}

func (u *Uploader) uploadParts(ctx context.Context, key string, uploadID *string, body io.Reader) ([]types.CompletedPart, error) {
	var parts []types.CompletedPart
	buf := make([]byte, partBuffer(body, u.PartSize))

	for n := int32(1); ; n++ {
		read, rerr := io.ReadFull(body, buf)
		if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return nil, eris.Wrapf(rerr, "read part %d of %s", n, key)
		}
		// an empty body still needs one part
		if read == 0 && len(parts) > 0 {
			return parts, nil
		}

		out, err := u.Client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(u.Bucket),
			Key:        aws.String(key),
			UploadId:   uploadID,
			PartNumber: aws.Int32(n),
			Body:       bytes.NewReader(buf[:read]),
		})
		if err != nil {
			return nil, eris.Wrapf(err, "upload part %d of %s", n, key)
		}
		parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(n)})

		if rerr != nil {
			return parts, nil
		}
	}
}
