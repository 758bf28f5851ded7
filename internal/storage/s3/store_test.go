package s3

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/amcassist/amcassist/internal/config"
	"github.com/amcassist/amcassist/internal/storage"
)

func TestPutUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "amcassist/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	opts := storage.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"chat-id": "c1"}}
	_, err = store.Put(context.Background(), "/exports/c1/t1.csv", bytes.NewBufferString("abc"), 3, opts)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutKey != "amcassist/prod/exports/c1/t1.csv" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
	if fake.lastPutOpts.Metadata["chat-id"] != "c1" || fake.lastPutOpts.ContentType != "text/csv" {
		t.Fatalf("opts = %#v", fake.lastPutOpts)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	_, err = store.Put(context.Background(), "../secrets.txt", bytes.NewBufferString("x"), 1, storage.PutOptions{})
	if err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected CreateBucket to be called")
	}
}

func TestHealthCheckRequiresBucket(t *testing.T) {
	store, _ := NewWithClient("bucket-a", "", &fakeClient{})
	if err := store.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error for missing bucket")
	}
	store, _ = NewWithClient("bucket-a", "", &fakeClient{bucketExists: true})
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestDeleteIgnoresMissingObject(t *testing.T) {
	fake := &fakeClient{deleteErr: storage.ErrObjectNotFound}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.Delete(context.Background(), "exports/c1/missing.csv"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestPresignGetClampsExpiry(t *testing.T) {
	fake := &fakeClient{}
	store, _ := NewWithClient("bucket-a", "p", fake)

	link, err := store.PresignGet(context.Background(), "exports/c1/t1.pdf", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PresignGet() error = %v", err)
	}
	if fake.lastExpiry != maxPresignExpiry {
		t.Fatalf("expiry = %s", fake.lastExpiry)
	}
	if !strings.Contains(link, "/bucket-a/p/exports/c1/t1.pdf") {
		t.Fatalf("link = %q", link)
	}
	if _, err := store.PresignGet(context.Background(), "exports/c1/t1.pdf", 0); err == nil {
		t.Fatal("expected error for zero expiry")
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.ObjectStoreConfig{Endpoint: "localhost:9000", Bucket: "exports", Prefix: "amc", UseSSL: true})
	if cfg.Endpoint != "localhost:9000" || cfg.Bucket != "exports" || cfg.Prefix != "amc" || !cfg.UseSSL {
		t.Fatalf("ConfigFrom() = %#v", cfg)
	}
}

type fakeClient struct {
	lastPutBucket      string
	lastPutKey         string
	lastPutOpts        storage.PutOptions
	lastExpiry         time.Duration
	bucketExists       bool
	createBucketCalled bool
	deleteErr          error
}

func (f *fakeClient) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	f.lastPutBucket = bucket
	f.lastPutKey = key
	f.lastPutOpts = opts
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) Delete(_ context.Context, _, _ string) error {
	return f.deleteErr
}

func (f *fakeClient) Presign(_ context.Context, bucket, key string, expiry time.Duration) (*url.URL, error) {
	f.lastExpiry = expiry
	return &url.URL{Scheme: "http", Host: "minio.local", Path: "/" + bucket + "/" + key}, nil
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) CreateBucket(_ context.Context, _, _ string) error {
	f.createBucketCalled = true
	return nil
}
