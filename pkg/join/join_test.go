package join

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestFileNameFromKey(t *testing.T) {
	cases := []struct {
		key     string
		name    string
		matches bool
	}{
		{"inbox/report-2026-01/0003.chunk", "report-2026-01", true},
		{"inbox/report-2026-01/metadata.json", "report-2026-01", true},
		{"outbox/report-2026-01", "", false},
		{"inbox/", "", false},
		{"state/report-2026-01/readlock", "", false},
	}
	for _, c := range cases {
		name, ok := FileNameFromKey(c.key)
		if ok != c.matches || name != c.name {
			t.Errorf("FileNameFromKey(%q) = (%q, %v), want (%q, %v)", c.key, name, ok, c.name, c.matches)
		}
	}
}

type memObject struct {
	data    []byte
	version string
}

type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]memObject
	etags    map[string]string
	parts    map[string]map[int32][]byte
	uploadNo int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]memObject{}, etags: map[string]string{}, parts: map[string]map[int32][]byte{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	if aws.ToString(in.IfNoneMatch) == "*" {
		if _, exists := f.objects[key]; exists {
			return nil, fmt.Errorf("precondition failed")
		}
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[key] = memObject{data: data, version: "v1"}
	f.etags[key] = "etag-" + key
	return &s3.PutObjectOutput{ETag: aws.String(f.etags[key])}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no such key %s", aws.ToString(in.Key))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data)), VersionId: aws.String(obj.version), ETag: aws.String(f.etags[aws.ToString(in.Key)])}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no such key %s", aws.ToString(in.Key))
	}
	return &s3.HeadObjectOutput{VersionId: aws.String(obj.version)}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var contents []types.Object
	prefix := aws.ToString(in.Prefix)
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			contents = append(contents, types.Object{Key: aws.String(key)})
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadNo++
	id := fmt.Sprintf("upload-%d", f.uploadNo)
	f.parts[id] = map[int32][]byte{}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, opts ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	f.parts[aws.ToString(in.UploadId)][aws.ToInt32(in.PartNumber)] = data
	f.mu.Unlock()
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("part-etag-%d", aws.ToInt32(in.PartNumber)))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := f.parts[aws.ToString(in.UploadId)]
	var whole []byte
	for i := 1; i <= len(parts); i++ {
		whole = append(whole, parts[int32(i)]...)
	}
	f.objects[aws.ToString(in.Key)] = memObject{data: whole, version: "v1"}
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, opts ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	delete(f.parts, aws.ToString(in.UploadId))
	f.mu.Unlock()
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, obj := range in.Delete.Objects {
		delete(f.objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestWorker_Process_HappyPath(t *testing.T) {
	fake := newFakeS3()
	chunk0 := []byte("hello ")
	chunk1 := []byte("world!")
	whole := append(append([]byte{}, chunk0...), chunk1...)

	sum := func(b []byte) string {
		h := sha256.Sum256(b)
		return hex.EncodeToString(h[:])
	}
	manifest := map[string]interface{}{
		"full_size":  len(whole),
		"full_sum":   sum(whole),
		"chunk_n":    2,
		"chunk_size": len(chunk0),
		"chunks": map[string]string{
			"0000.chunk": sum(chunk0),
			"0001.chunk": sum(chunk1),
		},
	}
	manifestJSON, _ := json.Marshal(manifest)

	fake.objects["inbox/myfile/metadata.json"] = memObject{data: manifestJSON, version: "v1"}
	fake.objects["inbox/myfile/0000.chunk"] = memObject{data: chunk0, version: "v1"}
	fake.objects["inbox/myfile/0001.chunk"] = memObject{data: chunk1, version: "v1"}

	w := NewWorker(fake, "bucket")
	ok, err := w.Process(context.Background(), "myfile")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected process to succeed")
	}

	out, exists := fake.objects["outbox/myfile"]
	if !exists {
		t.Fatal("expected outbox object to exist")
	}
	if string(out.data) != string(whole) {
		t.Fatalf("joined content mismatch: got %q, want %q", out.data, whole)
	}

	for key := range fake.objects {
		if strings.HasPrefix(key, "inbox/myfile") || strings.HasPrefix(key, "state/myfile") {
			t.Fatalf("expected %s to be cleaned up", key)
		}
	}
}
