package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pinboard/event-delivery-service/config"
)

var _ Client = (*S3Client)(nil)

// S3Client talks to any S3-compatible store (AWS, R2, MinIO).
type S3Client struct {
	api     s3iface.S3API
	bucket  string
	baseURL string
}

func NewS3Client(api s3iface.S3API, bucket, baseURL string) *S3Client {
	return &S3Client{api: api, bucket: bucket, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// NewS3ClientFromConfig opens an SDK session for cfg.
func NewS3ClientFromConfig(cfg config.BlobConfig) (*S3Client, error) {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.UsePathStyle),
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("blob: session: %w", err)
	}

	baseURL := cfg.PublicURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Bucket)
	}
	return NewS3Client(s3.New(sess), cfg.Bucket, baseURL), nil
}

func (c *S3Client) URL(ctx context.Context, id string) Result[string] {
	head := c.Metadata(ctx, id)
	if head.Status != Found {
		return Result[string]{Status: head.Status, Err: head.Err}
	}
	return found(c.baseURL + "/" + id)
}

func (c *S3Client) Metadata(ctx context.Context, id string) Result[Metadata] {
	out, err := c.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		if isNotFound(err) {
			return notFound[Metadata]()
		}
		return unavailable[Metadata](fmt.Errorf("blob: head %s: %w", id, err))
	}

	return found(Metadata{
		Key:          id,
		ContentType:  aws.StringValue(out.ContentType),
		Size:         aws.Int64Value(out.ContentLength),
		ETag:         strings.Trim(aws.StringValue(out.ETag), `"`),
		LastModified: aws.TimeValue(out.LastModified),
	})
}

// Delete checks existence first because S3 deletes are idempotent and never report a missing key.
func (c *S3Client) Delete(ctx context.Context, id string) Result[struct{}] {
	head := c.Metadata(ctx, id)
	if head.Status != Found {
		return Result[struct{}]{Status: head.Status, Err: head.Err}
	}

	_, err := c.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		if isNotFound(err) {
			return notFound[struct{}]()
		}
		return unavailable[struct{}](fmt.Errorf("blob: delete %s: %w", id, err))
	}
	return found(struct{}{})
}

func isNotFound(err error) bool {
	var rf awserr.RequestFailure
	if errors.As(err, &rf) && rf.StatusCode() == http.StatusNotFound {
		return true
	}
	var ae awserr.Error
	if errors.As(err, &ae) {
		switch ae.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
