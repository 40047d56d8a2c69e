package main

import "testing"

func TestFileFromRecord_AcceptsObjectCreatedUnderInbox(t *testing.T) {
	record := s3EventRecord{EventName: "ObjectCreated:Put"}
	record.S3.Bucket.Name = "my-bucket"
	record.S3.Object.Key = "inbox/report.csv/chunk-0"

	bucket, name, ok := fileFromRecord(record)
	if !ok {
		t.Fatal("expected record to be accepted")
	}
	if bucket != "my-bucket" || name != "report.csv" {
		t.Fatalf("unexpected bucket/name: %q/%q", bucket, name)
	}
}

func TestFileFromRecord_RejectsNonObjectCreated(t *testing.T) {
	record := s3EventRecord{EventName: "ObjectRemoved:Delete"}
	record.S3.Bucket.Name = "my-bucket"
	record.S3.Object.Key = "inbox/report.csv/chunk-0"

	if _, _, ok := fileFromRecord(record); ok {
		t.Fatal("expected delete events to be rejected")
	}
}

func TestFileFromRecord_RejectsNonInboxKeys(t *testing.T) {
	record := s3EventRecord{EventName: "ObjectCreated:Put"}
	record.S3.Bucket.Name = "my-bucket"
	record.S3.Object.Key = "outbox/report.csv"

	if _, _, ok := fileFromRecord(record); ok {
		t.Fatal("expected non-inbox keys to be rejected")
	}
}
