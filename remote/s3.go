// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config describes how to reach an S3-compatible bucket. When AccessKeyID
// is set, a static aws-sdk-go-v2/credentials provider is used and the SDK
// SigV4-signs each request. When AccessKeyID is empty, no credentials
// provider is configured; the SDK's default credential chain is not loaded.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, for S3-compatible (non-AWS) services
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string // object key prefix, joined with paths
}

// S3 is a Remote backed by an S3 (or S3-compatible) bucket.
type S3 struct {
	bucket string
	prefix string
	client *s3.Client
}

// NewS3 builds an S3 remote from cfg.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("remote: s3: bucket is required")
	}

	var awsCfg aws.Config
	awsCfg.Region = cfg.Region
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/"), client: client}, nil
}

func (s *S3) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + strings.TrimLeft(path, "/")
}

func (s *S3) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFoundErr(err) {
		return false, nil
	}
	return false, translateS3Error("exists", path, err)
}

func (s *S3) Get(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		if isNotFoundErr(err) {
			return nil, &Error{Kind: KindNotFound, Op: "get", Path: path, Err: ErrNotFound}
		}
		return nil, translateS3Error("get", path, err)
	}
	defer out.Body.Close()

	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "get", Path: path, Err: err}
	}
	return buf.Bytes(), nil
}

func (s *S3) Put(ctx context.Context, path string, data []byte, _ bool, _ Signer) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return translateS3Error("put", path, err)
	}
	return nil
}

func (s *S3) Delete(ctx context.Context, path string, _ Signer) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return translateS3Error("delete", path, err)
	}
	return nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	var token *string
	full := s.key(prefix)

	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(full),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, translateS3Error("list", prefix, err)
		}
		for _, obj := range resp.Contents {
			key := aws.ToString(obj.Key)
			if s.prefix != "" {
				key = strings.TrimPrefix(key, s.prefix+"/")
			}
			out = append(out, key)
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		token = resp.NextContinuationToken
	}
	return out, nil
}

func isNotFoundErr(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func translateS3Error(op, path string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return &Error{Kind: KindNotFound, Op: op, Path: path, Err: ErrNotFound}
		case "AccessDenied", "Forbidden":
			return &Error{Kind: KindForbidden, Op: op, Path: path, Err: err}
		case "PreconditionFailed":
			return &Error{Kind: KindPreconditionFailed, Op: op, Path: path, Err: err}
		}
	}
	return &Error{Kind: KindUnavailable, Op: op, Path: path, Err: err}
}
