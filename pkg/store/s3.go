package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3 (or S3-compatible) array store.
type S3Config struct {
	AccessKeyID     string // Access key; empty uses the default chain
	SecretAccessKey string
	Region          string
	Endpoint        string // Custom endpoint for MinIO and friends
	Bucket          string
	Prefix          string // Object key prefix
	ForcePathStyle  bool   // Required for MinIO
}

// S3Store keeps each array as two objects, <uri>/schema.json and
// <uri>/values.bin. Ranged column reads map to HTTP Range requests;
// S3 objects cannot be patched in place, so writes are whole-array only.
// Compression is not supported on this backend.
type S3Store struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Store builds the client and returns the store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Store{cfg: cfg, client: s3.NewFromConfig(awsCfg, s3Opts...)}, nil
}

func (s *S3Store) key(uri, name string) string {
	pfx := strings.TrimSuffix(s.cfg.Prefix, "/")
	if pfx != "" {
		return pfx + "/" + uri + "/" + name
	}
	return uri + "/" + name
}

func (s *S3Store) putObject(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("store: put s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	return nil
}

func (s *S3Store) getObject(ctx context.Context, key, byteRange string) ([]byte, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}
	if byteRange != "" {
		in.Range = aws.String(byteRange)
	}
	resp, err := s.client.GetObject(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("store: get s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("store: read s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	return data, nil
}

func (s *S3Store) CreateMatrix(ctx context.Context, uri string, schema MatrixSchema) error {
	if schema.Compression != "" {
		return fmt.Errorf("store: s3 backend does not support compressed arrays (%s)", uri)
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("store: encode schema for %s: %w", uri, err)
	}
	return s.putObject(ctx, s.key(uri, schemaFile), data)
}

func (s *S3Store) CreateVector(ctx context.Context, uri string, schema VectorSchema) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("store: encode schema for %s: %w", uri, err)
	}
	return s.putObject(ctx, s.key(uri, schemaFile), data)
}

func (s *S3Store) DescribeMatrix(ctx context.Context, uri string) (MatrixSchema, error) {
	var schema MatrixSchema
	data, err := s.getObject(ctx, s.key(uri, schemaFile), "")
	if err != nil {
		return schema, err
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		return schema, fmt.Errorf("store: decode schema for %s: %w", uri, err)
	}
	return schema, nil
}

func (s *S3Store) DescribeVector(ctx context.Context, uri string) (VectorSchema, error) {
	var schema VectorSchema
	data, err := s.getObject(ctx, s.key(uri, schemaFile), "")
	if err != nil {
		return schema, err
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		return schema, fmt.Errorf("store: decode schema for %s: %w", uri, err)
	}
	return schema, nil
}

func (s *S3Store) ReadMatrixRange(ctx context.Context, uri string, rowFrom, rowTo, colFrom, colTo int) ([]byte, error) {
	schema, err := s.DescribeMatrix(ctx, uri)
	if err != nil {
		return nil, err
	}
	if rowFrom < 0 || rowTo > schema.Rows || rowFrom > rowTo ||
		colFrom < 0 || colTo > schema.Cols || colFrom > colTo {
		return nil, fmt.Errorf("store: range rows[%d,%d) cols[%d,%d) out of bounds for %s (%dx%d)",
			rowFrom, rowTo, colFrom, colTo, uri, schema.Rows, schema.Cols)
	}
	if colFrom == colTo {
		return nil, nil
	}

	size := schema.DType.Size()
	from := int64(colFrom) * int64(schema.Rows) * int64(size)
	to := int64(colTo)*int64(schema.Rows)*int64(size) - 1
	full, err := s.getObject(ctx, s.key(uri, valuesFile), fmt.Sprintf("bytes=%d-%d", from, to))
	if err != nil {
		return nil, err
	}

	if rowFrom == 0 && rowTo == schema.Rows {
		return full, nil
	}
	height := rowTo - rowFrom
	out := make([]byte, (colTo-colFrom)*height*size)
	for c := 0; c < colTo-colFrom; c++ {
		src := full[(c*schema.Rows+rowFrom)*size : (c*schema.Rows+rowTo)*size]
		copy(out[c*height*size:], src)
	}
	return out, nil
}

func (s *S3Store) WriteMatrixCols(ctx context.Context, uri string, colOffset int, data []byte) error {
	schema, err := s.DescribeMatrix(ctx, uri)
	if err != nil {
		return err
	}
	colBytes := schema.Rows * schema.DType.Size()
	if colOffset != 0 || len(data) != schema.Cols*colBytes {
		return fmt.Errorf("store: s3 backend only supports whole-array writes (%s); partial writes need an external coordinator", uri)
	}
	return s.putObject(ctx, s.key(uri, valuesFile), data)
}

func (s *S3Store) ReadVectorRange(ctx context.Context, uri string, from, to int) ([]byte, error) {
	schema, err := s.DescribeVector(ctx, uri)
	if err != nil {
		return nil, err
	}
	if from < 0 || to > schema.Len || from > to {
		return nil, fmt.Errorf("store: range [%d,%d) out of bounds for %s (len=%d)", from, to, uri, schema.Len)
	}
	if from == to {
		return nil, nil
	}
	size := schema.DType.Size()
	return s.getObject(ctx, s.key(uri, valuesFile),
		fmt.Sprintf("bytes=%d-%d", int64(from)*int64(size), int64(to)*int64(size)-1))
}

func (s *S3Store) WriteVectorRange(ctx context.Context, uri string, offset int, data []byte) error {
	schema, err := s.DescribeVector(ctx, uri)
	if err != nil {
		return err
	}
	if offset != 0 || len(data) != schema.Len*schema.DType.Size() {
		return fmt.Errorf("store: s3 backend only supports whole-array writes (%s); partial writes need an external coordinator", uri)
	}
	return s.putObject(ctx, s.key(uri, valuesFile), data)
}
