package archive

import (
	"bytes"
	"context"
	"fmt"

	"stockpile_manager/internal/domain/labeldate"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// putter is the part of *s3.Client the archive needs.
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive stores scanned label images in a bucket.
type S3Archive struct {
	client putter
	bucket string
	region string
}

// NewS3Archive uses the default AWS credential chain. An empty region falls
// back to AWS_REGION or the shared config.
func NewS3Archive(ctx context.Context, bucket, region string) (*S3Archive, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Archive{
		client: s3.NewFromConfig(sdkConfig),
		bucket: bucket,
		region: sdkConfig.Region,
	}, nil
}

// Store uploads the image under key and returns its object URL.
func (a *S3Archive) Store(ctx context.Context, key string, img labeldate.Image) (string, error) {
	data, err := img.Bytes()
	if err != nil {
		return "", err
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(img.MediaType()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload label image to S3: %w", err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.bucket, a.region, key), nil
}
