// Package join orchestrates one chunked file's lifecycle once its chunks
// have all landed in the inbox: take a read lease, verify integrity, take
// a write lease, multipart-concatenate the chunks into the outbox, then
// wipe the inbox and state prefixes.
package join

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/beyondessential/alertd/pkg/chunked"
	"github.com/beyondessential/alertd/pkg/integrity"
	"github.com/beyondessential/alertd/pkg/lease"
)

// LeaseDuration is how long a read or write lease is held before it is
// eligible to be stolen by another worker invocation.
const LeaseDuration = 15 * time.Minute

// S3API is the subset of the S3 client the worker needs beyond what the
// lease and integrity packages already narrow for themselves.
type S3API interface {
	lease.S3API
	integrity.S3API
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Worker processes completed chunked uploads it is notified about.
type Worker struct {
	S3       S3API
	Bucket   string
	Leases   *lease.Manager
	Verifier *integrity.Verifier
}

// NewWorker builds a Worker wired to one bucket, constructing its Lease
// Manager and Integrity Verifier.
func NewWorker(client S3API, bucket string) *Worker {
	return &Worker{
		S3:       client,
		Bucket:   bucket,
		Leases:   &lease.Manager{S3: client, Bucket: bucket},
		Verifier: &integrity.Verifier{S3: client, Bucket: bucket},
	}
}

// FileNameFromKey extracts the chunked-file name from an inbox object key,
// e.g. "inbox/report-2026-01/0003.chunk" -> "report-2026-01", or ("", false)
// if key does not look like an inbox chunk object.
func FileNameFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "inbox/")
	if !ok {
		return "", false
	}
	name, _, ok := strings.Cut(rest, "/")
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// Process runs the full lifecycle for one chunked file: acquire read lease,
// verify integrity, acquire write lease, concatenate, clean up. It returns
// (false, nil) for any condition that means "try again later, not an
// error" (an outstanding lease, or a failed integrity check).
func (w *Worker) Process(ctx context.Context, name string) (bool, error) {
	runID := uuid.NewString()
	expiry := time.Now().Add(LeaseDuration)

	gotRead, err := w.Leases.Acquire(ctx, name, lease.Read, expiry)
	if err != nil {
		return false, fmt.Errorf("acquiring read lease for %s (run %s): %w", name, runID, err)
	}
	if !gotRead {
		return false, nil
	}

	manifest, err := w.readManifest(ctx, name)
	if err != nil {
		return false, fmt.Errorf("reading manifest for %s (run %s): %w", name, runID, err)
	}

	ok, err := w.Verifier.Check(ctx, name, manifest)
	if err != nil {
		return false, fmt.Errorf("checking integrity for %s (run %s): %w", name, runID, err)
	}
	if !ok {
		return false, nil
	}

	gotWrite, err := w.Leases.Acquire(ctx, name, lease.Write, expiry)
	if err != nil {
		return false, fmt.Errorf("acquiring write lease for %s (run %s): %w", name, runID, err)
	}
	if !gotWrite {
		return false, fmt.Errorf("failed to acquire write lease for %s despite holding the read lease (run %s)", name, runID)
	}

	if err := w.concat(ctx, name, runID, manifest); err != nil {
		return false, fmt.Errorf("joining chunks for %s (run %s): %w", name, runID, err)
	}

	if err := w.cleanup(ctx, name); err != nil {
		return false, fmt.Errorf("cleaning up after joining %s (run %s): %w", name, runID, err)
	}

	return true, nil
}

func (w *Worker) readManifest(ctx context.Context, name string) (*chunked.Manifest, error) {
	out, err := w.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(w.Bucket),
		Key:    aws.String(fmt.Sprintf("inbox/%s/metadata.json", name)),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	data := make([]byte, 0, chunked.MaxManifestSize)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := out.Body.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if readErr != nil {
			break
		}
	}

	return chunked.Decode(data)
}

func (w *Worker) outboxKey(name string) string {
	return fmt.Sprintf("outbox/%s", name)
}

func (w *Worker) concat(ctx context.Context, name, runID string, manifest *chunked.Manifest) error {
	created, err := w.S3.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(w.Bucket),
		Key:         aws.String(w.outboxKey(name)),
		ContentType: aws.String("application/octet-stream"),
		Metadata:    map[string]string{"join-run-id": runID},
	})
	if err != nil {
		return fmt.Errorf("creating multipart upload: %w", err)
	}
	uploadID := aws.ToString(created.UploadId)

	names := manifest.OrderedChunkNames()
	parts := make([]types.CompletedPart, len(names))

	group, gctx := errgroup.WithContext(ctx)
	for i, chunkName := range names {
		i, chunkName := i, chunkName
		group.Go(func() error {
			part, err := w.uploadPart(gctx, name, chunkName, uploadID, int32(i+1))
			if err != nil {
				return err
			}
			parts[i] = part
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		_, abortErr := w.S3.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(w.Bucket),
			Key:      aws.String(w.outboxKey(name)),
			UploadId: aws.String(uploadID),
		})
		if abortErr != nil {
			return fmt.Errorf("uploading parts: %w (and aborting the upload also failed: %v)", err, abortErr)
		}
		return fmt.Errorf("uploading parts: %w", err)
	}

	_, err = w.S3.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(w.Bucket),
		Key:      aws.String(w.outboxKey(name)),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return fmt.Errorf("completing multipart upload: %w", err)
	}
	return nil
}

func (w *Worker) uploadPart(ctx context.Context, name, chunkName, uploadID string, partNumber int32) (types.CompletedPart, error) {
	chunk, err := w.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(w.Bucket),
		Key:    aws.String(fmt.Sprintf("inbox/%s/%s", name, chunkName)),
	})
	if err != nil {
		return types.CompletedPart{}, fmt.Errorf("fetching chunk %s: %w", chunkName, err)
	}
	defer chunk.Body.Close()

	part, err := w.S3.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(w.Bucket),
		Key:        aws.String(w.outboxKey(name)),
		UploadId:   aws.String(uploadID),
		Body:       chunk.Body,
		PartNumber: aws.Int32(partNumber),
	})
	if err != nil {
		return types.CompletedPart{}, fmt.Errorf("uploading part %d (%s): %w", partNumber, chunkName, err)
	}

	return types.CompletedPart{ETag: part.ETag, PartNumber: aws.Int32(partNumber)}, nil
}

func (w *Worker) cleanup(ctx context.Context, name string) error {
	var toDelete []types.ObjectIdentifier
	for _, prefix := range []string{"inbox", "state"} {
		listed, err := w.S3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(w.Bucket),
			Prefix: aws.String(fmt.Sprintf("%s/%s/", prefix, name)),
		})
		if err != nil {
			return fmt.Errorf("listing %s prefix: %w", prefix, err)
		}
		for _, obj := range listed.Contents {
			toDelete = append(toDelete, types.ObjectIdentifier{Key: obj.Key})
		}
	}

	if len(toDelete) == 0 {
		return nil
	}

	_, err := w.S3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(w.Bucket),
		Delete: &types.Delete{Objects: toDelete},
	})
	if err != nil {
		return fmt.Errorf("deleting inbox/state objects: %w", err)
	}
	return nil
}
