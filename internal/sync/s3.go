package sync

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options configures an S3Destination.
type S3Options struct {
	Bucket string
	Key    string
	Region string
	// Endpoint enables path-style addressing (MinIO and similar) when set.
	Endpoint string
	// ServerSideEncryption requests SSE-S3 on every upload.
	ServerSideEncryption bool
}

// S3Destination writes JSONL data to an S3-compatible bucket.
type S3Destination struct {
	client *s3.Client
	opts   S3Options
}

// NewS3Destination creates an S3 destination using the default AWS
// credential chain.
func NewS3Destination(ctx context.Context, opts S3Options) (*S3Destination, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 destination: bucket is required")
	}
	if opts.Key == "" {
		opts.Key = "envtree.jsonl"
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Destination{client: s3.NewFromConfig(cfg, s3opts...), opts: opts}, nil
}

// Write uploads data to S3 as the configured object key.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	_, err := d.client.PutObject(ctx, d.putInput(data))
	if err != nil {
		return fmt.Errorf("s3 put object %s/%s: %w", d.opts.Bucket, d.opts.Key, err)
	}
	return nil
}

func (d *S3Destination) putInput(data []byte) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(d.opts.Bucket),
		Key:         aws.String(d.opts.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	}
	if d.opts.ServerSideEncryption {
		in.ServerSideEncryption = types.ServerSideEncryptionAes256
	}
	return in
}

func (d *S3Destination) String() string {
	return "s3://" + d.opts.Bucket + "/" + d.opts.Key
}
