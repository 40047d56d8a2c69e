package lease

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type preconditionFailedError struct{}

func (preconditionFailedError) Error() string       { return "precondition failed" }
func (preconditionFailedError) ErrorCode() string   { return "PreconditionFailed" }
func (preconditionFailedError) ErrorMessage() string { return "precondition failed" }
func (preconditionFailedError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultClient
}

type fakeS3 struct {
	objects   map[string][]byte
	etags     map[string]string
	nextEtag  int
	failFirst bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, etags: map[string]string{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	data, _ := io.ReadAll(in.Body)

	if aws.ToString(in.IfNoneMatch) == "*" {
		if _, exists := f.objects[key]; exists {
			return nil, preconditionFailedError{}
		}
	}
	if match := aws.ToString(in.IfMatch); match != "" {
		if f.etags[key] != match {
			return nil, preconditionFailedError{}
		}
	}

	f.nextEtag++
	etag := "etag-" + string(rune('a'+f.nextEtag))
	f.objects[key] = data
	f.etags[key] = etag
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	data, ok := f.objects[key]
	if !ok {
		return nil, preconditionFailedError{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
		ETag: aws.String(f.etags[key]),
	}, nil
}

func TestAcquire_FreshLease(t *testing.T) {
	m := &Manager{S3: newFakeS3(), Bucket: "b"}
	ok, err := m.Acquire(context.Background(), "file1", Read, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected fresh lease to be acquired")
	}
}

func TestAcquire_LiveLeaseBlocks(t *testing.T) {
	fake := newFakeS3()
	m := &Manager{S3: fake, Bucket: "b"}
	ctx := context.Background()

	ok, err := m.Acquire(ctx, "file1", Read, time.Now().Add(time.Hour))
	if err != nil || !ok {
		t.Fatalf("setup: expected first acquire to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = m.Acquire(ctx, "file1", Read, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected second acquire of a live lease to fail")
	}
}

func TestAcquire_ExpiredLeaseIsStolen(t *testing.T) {
	fake := newFakeS3()
	m := &Manager{S3: fake, Bucket: "b"}
	ctx := context.Background()

	body, _ := json.Marshal(map[string]int64{"expiry": time.Now().Add(-time.Hour).Unix()})
	fake.objects["state/file1/readlock"] = body
	fake.etags["state/file1/readlock"] = "stale-etag"

	ok, err := m.Acquire(ctx, "file1", Read, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected expired lease to be stolen")
	}
}
