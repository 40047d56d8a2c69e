// Package lease implements the read/write mutual-exclusion leases a Join
// Worker takes on a chunked file's state prefix, using S3 conditional PUT
// as the compare-and-swap primitive.
package lease

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Kind discriminates the two lease types a Join Worker takes on a file.
type Kind string

const (
	Read  Kind = "read"
	Write Kind = "write"
)

// S3API is the subset of the S3 client the lease manager needs, narrowed so
// tests can substitute a fake.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Manager takes and steals leases under state/<name>/<kind>lock in one
// bucket.
type Manager struct {
	S3     S3API
	Bucket string
}

type body struct {
	Expiry int64 `json:"expiry"`
}

func (m *Manager) key(name string, kind Kind) string {
	return fmt.Sprintf("state/%s/%slock", name, kind)
}

// Acquire attempts to take the named lease, expiring at expiry. It returns
// true if the lease was newly created or stolen from an expired holder,
// false if a live lease is already held by someone else.
func (m *Manager) Acquire(ctx context.Context, name string, kind Kind, expiry time.Time) (bool, error) {
	key := m.key(name, kind)
	payload, err := json.Marshal(body{Expiry: expiry.Unix()})
	if err != nil {
		return false, fmt.Errorf("encoding lease body: %w", err)
	}

	_, err = m.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		IfNoneMatch: aws.String("*"),
	})
	if err == nil {
		return true, nil
	}
	if !isPreconditionFailed(err) {
		return false, fmt.Errorf("acquiring %s lease for %s: %w", kind, name, err)
	}

	out, err := m.S3.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(m.Bucket), Key: aws.String(key)})
	if err != nil {
		return false, fmt.Errorf("reading existing %s lease for %s: %w", kind, name, err)
	}
	defer out.Body.Close()

	etag := aws.ToString(out.ETag)
	if etag == "" {
		return false, fmt.Errorf("existing %s lease for %s has no etag", kind, name)
	}

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return false, fmt.Errorf("reading existing %s lease body for %s: %w", kind, name, err)
	}
	var existing body
	if err := json.Unmarshal(data, &existing); err != nil {
		return false, fmt.Errorf("decoding existing %s lease for %s: %w", kind, name, err)
	}

	if time.Now().Before(time.Unix(existing.Expiry, 0)) {
		return false, nil // still held
	}

	_, err = m.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:  aws.String(m.Bucket),
		Key:     aws.String(key),
		Body:    bytes.NewReader(payload),
		IfMatch: aws.String(etag),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return false, nil // someone else stole it first
		}
		return false, fmt.Errorf("stealing expired %s lease for %s: %w", kind, name, err)
	}
	return true, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "412", "419":
			return true
		}
	}
	return false
}
