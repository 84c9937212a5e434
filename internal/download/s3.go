package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Transport reads s3://bucket/key URLs, for pipelines that mirror engine
// releases or add-on archives in a private bucket.
type S3Transport struct {
	region  string
	profile string

	once   sync.Once
	client *s3.Client
	err    error
}

// NewS3Transport creates a transport whose client is initialised on first use
// from the default AWS credential chain.
func NewS3Transport(region, profile string) *S3Transport {
	return &S3Transport{region: region, profile: profile}
}

func (t *S3Transport) initClient(ctx context.Context) error {
	t.once.Do(func() {
		var opts []func(*awsconfig.LoadOptions) error
		if t.region != "" {
			opts = append(opts, awsconfig.WithRegion(t.region))
		}
		if t.profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(t.profile))
		}

		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			t.err = fmt.Errorf("unable to load AWS config: %w", err)
			return
		}
		t.client = s3.NewFromConfig(cfg)
	})
	return t.err
}

func (t *S3Transport) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return nil, err
	}
	if err := t.initClient(ctx); err != nil {
		return nil, err
	}

	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, &StatusError{Code: 404, Status: "404 NoSuchKey"}
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NotFound", "NoSuchBucket":
				return nil, &StatusError{Code: 404, Status: "404 " + apiErr.ErrorCode()}
			case "SlowDown", "InternalError", "ServiceUnavailable":
				return nil, &StatusError{Code: 503, Status: "503 " + apiErr.ErrorCode()}
			}
		}
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URL %q: %w", rawURL, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid S3 URL %q: scheme must be s3", rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 URL %q: expected s3://bucket/key", rawURL)
	}
	return u.Host, key, nil
}
