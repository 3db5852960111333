package blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pinboard/event-delivery-service/config"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string]int64
	down    bool
	deleted []string
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	if f.down {
		return nil, awserr.New("RequestError", "connection refused", errors.New("dial tcp"))
	}
	size, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.NewRequestFailure(awserr.New("NotFound", "Not Found", nil), http.StatusNotFound, "req-1")
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("image/jpeg"),
		ETag:          aws.String(`"abc"`),
		LastModified:  aws.Time(time.Unix(1700000000, 0)),
	}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	key := aws.StringValue(in.Key)
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestS3Client_Variants(t *testing.T) {
	api := &fakeS3{objects: map[string]int64{"pins/p1.jpg": 2048}}
	c := NewS3Client(api, "pins", "https://cdn.example.com/")
	ctx := context.Background()

	url := c.URL(ctx, "pins/p1.jpg")
	assert.Equal(t, Found, url.Status)
	assert.Equal(t, "https://cdn.example.com/pins/p1.jpg", url.Value)

	md := c.Metadata(ctx, "pins/p1.jpg")
	require.Equal(t, Found, md.Status)
	assert.Equal(t, int64(2048), md.Value.Size)
	assert.Equal(t, "abc", md.Value.ETag)

	assert.Equal(t, NotFound, c.Metadata(ctx, "pins/missing.jpg").Status)

	assert.Equal(t, Found, c.Delete(ctx, "pins/p1.jpg").Status)
	assert.Equal(t, NotFound, c.Delete(ctx, "pins/p1.jpg").Status)
	assert.Equal(t, []string{"pins/p1.jpg"}, api.deleted)

	api.down = true
	res := c.Delete(ctx, "pins/p2.jpg")
	assert.Equal(t, Unavailable, res.Status)
	assert.Error(t, res.Err)
}

type countingClient struct {
	Client
	calls int
}

func (c *countingClient) Delete(ctx context.Context, id string) Result[struct{}] {
	c.calls++
	return c.Client.Delete(ctx, id)
}

func TestGuarded_OpensAfterConsecutiveFailures(t *testing.T) {
	api := &fakeS3{objects: map[string]int64{}, down: true}
	inner := &countingClient{Client: NewS3Client(api, "pins", "")}
	g := NewGuarded(inner, config.BreakerConfig{FailureThreshold: 2, Timeout: time.Hour}, discard())
	ctx := context.Background()

	assert.Equal(t, Unavailable, g.Delete(ctx, "a").Status)
	assert.Equal(t, Unavailable, g.Delete(ctx, "b").Status)
	assert.Equal(t, gobreaker.StateOpen, g.State())

	res := g.Delete(ctx, "c")
	assert.Equal(t, Unavailable, res.Status)
	assert.ErrorIs(t, res.Err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the store")
}

func TestGuarded_NotFoundIsHealthy(t *testing.T) {
	api := &fakeS3{objects: map[string]int64{}}
	g := NewGuarded(NewS3Client(api, "pins", ""), config.BreakerConfig{FailureThreshold: 1, Timeout: time.Hour}, discard())

	for i := 0; i < 3; i++ {
		assert.Equal(t, NotFound, g.Metadata(context.Background(), "nope").Status)
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
	assert.Equal(t, "not_found", NotFound.String())
}
