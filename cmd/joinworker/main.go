// Command joinworker assembles chunked file uploads in an S3 bucket: for
// each inbox/ write event it's handed, it verifies chunk integrity and
// concatenates the chunks into outbox/ via a multipart upload.
//
// No AWS Lambda runtime library appears anywhere in the retrieved example
// pack, so this does not wire into lambda_runtime-equivalent Go
// infrastructure (aws-lambda-go). Instead it reads a JSON-encoded S3
// event notification from stdin (the same wire shape a Lambda invocation
// or an S3-to-SQS-to-worker bridge would deliver) and processes it against
// a real S3 client built from the ambient AWS config. A thin Lambda
// shim, if one were added later, would reuse fileFromRecord and
// join.Worker.Process the same way run does.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/beyondessential/alertd/pkg/join"
)

// s3Event mirrors the subset of the AWS S3 event notification JSON shape
// this worker needs: one or more records naming a bucket, object key, and
// event name.
type s3Event struct {
	Records []s3EventRecord `json:"Records"`
}

type s3EventRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

func main() {
	if err := run(os.Stdin, os.Stdout); err != nil {
		logrus.WithError(err).Error("join worker run failed")
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer) error {
	ctx := context.Background()

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading event: %w", err)
	}

	var event s3Event
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("parsing event: %w", err)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)

	results := map[string]bool{}
	group, gctx := errgroup.WithContext(ctx)
	for _, record := range event.Records {
		record := record
		bucket, name, ok := fileFromRecord(record)
		if !ok {
			continue
		}
		worker := join.NewWorker(client, bucket)
		group.Go(func() error {
			processed, err := worker.Process(gctx, name)
			if err != nil {
				return fmt.Errorf("processing %s/%s: %w", bucket, name, err)
			}
			results[name] = processed
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	logrus.WithField("files", len(results)).Info("join worker run complete")
	return json.NewEncoder(out).Encode(results)
}

// fileFromRecord extracts the bucket and chunked-file name from an S3
// event record, processing ObjectCreated writes under inbox/ and ignoring
// everything else (deletes, non-inbox prefixes, other buckets' events).
func fileFromRecord(record s3EventRecord) (bucket, name string, ok bool) {
	if !strings.HasPrefix(record.EventName, "ObjectCreated:") {
		return "", "", false
	}
	if record.S3.Bucket.Name == "" || record.S3.Object.Key == "" {
		return "", "", false
	}
	name, ok = join.FileNameFromKey(record.S3.Object.Key)
	if !ok {
		return "", "", false
	}
	return record.S3.Bucket.Name, name, true
}
