package presign

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/talentbridge/go-apiclient/upload"
)

// S3Params ...
type S3Params struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the AWS endpoint, e.g. for a local S3 compatible
	// server. Path style addressing is used when set.
	Endpoint string
	Expiry   time.Duration
}

// S3 signs POST requests with the AWS SDK.
type S3 struct {
	client *s3.PresignClient
	bucket string
	expiry time.Duration
}

// NewS3 ...
func NewS3(ctx context.Context, params S3Params, logger log.Logger) (*S3, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	cfg, err := loadAWSConfig(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey, logger)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(*cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
			o.UsePathStyle = true
		}
	})

	expiry := params.Expiry
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &S3{client: s3.NewPresignClient(client), bucket: params.Bucket, expiry: expiry}, nil
}

// Presign ...
func (p *S3) Presign(ctx context.Context, key, contentType string, maxSize int64) (upload.Descriptor, error) {
	if err := check(key, maxSize); err != nil {
		return upload.Descriptor{}, err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := p.client.PresignPostObject(ctx, input, func(o *s3.PresignPostOptions) {
		o.Expires = p.expiry
		o.Conditions = []interface{}{
			[]interface{}{"content-length-range", 1, maxSize},
		}
	})
	if err != nil {
		return upload.Descriptor{}, fmt.Errorf("presign post object: %w", err)
	}
	return upload.Descriptor{UploadURL: req.URL, FileKey: key, Fields: req.Values}, nil
}

func loadAWSConfig(ctx context.Context, region, accessKeyID, secretKey string, logger log.Logger) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}
	return &cfg, nil
}
