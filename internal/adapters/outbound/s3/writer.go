// Package s3 provides an S3-backed BlobStore.
package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

var errObjectExists = errors.New("object already exists")

// s3WriterAPI defines the subset of S3 operations needed for writing.
type s3WriterAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// prepareBody handles optional gzip compression for the upload body.
func prepareBody(data []byte, compressGzip bool) ([]byte, *string, error) {
	if !compressGzip {
		return data, nil, nil
	}

	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	if _, err := gzWriter.Write(data); err != nil {
		return nil, nil, fmt.Errorf("failed to compress content: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return buf.Bytes(), aws.String("gzip"), nil
}

// putObject uploads data to key. With ifNotExists the write is conditional
// and errObjectExists is returned when the key is already taken.
func putObject(ctx context.Context, client s3WriterAPI, bucket, key string, data []byte, compressGzip, ifNotExists bool) error {
	body, contentEncoding, err := prepareBody(data, compressGzip)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/json"),
		ContentEncoding: contentEncoding,
	}
	if ifNotExists {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := client.PutObject(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "PreconditionFailed" || apiErr.ErrorCode() == "412") {
			return fmt.Errorf("%s: %w", key, errObjectExists)
		}
		return fmt.Errorf("failed to write %s to S3: %w", key, err)
	}
	return nil
}

func deleteObject(ctx context.Context, client s3WriterAPI, bucket, key string) error {
	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
