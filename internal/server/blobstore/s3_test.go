package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/cryptox"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory bucket with conditional writes and paged listing.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	etags    map[string]string
	seq      int
	pageSize int

	failPut func(key string) error
	onPut   func(key string)
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, etags: map[string]string{}, pageSize: 2}
}

func preconditionFailed() error {
	return &smithy.GenericAPIError{Code: codePreconditionFailed, Message: "At least one of the pre-conditions you specified did not hold"}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
		ETag: aws.String(f.etags[aws.ToString(in.Key)]),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if f.failPut != nil {
		if err := f.failPut(key); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	_, exists := f.objects[key]
	if aws.ToString(in.IfNoneMatch) == "*" && exists {
		f.mu.Unlock()
		return nil, preconditionFailed()
	}
	if in.IfMatch != nil && (!exists || f.etags[key] != *in.IfMatch) {
		f.mu.Unlock()
		return nil, preconditionFailed()
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.seq++
	f.objects[key] = data
	f.etags[key] = `"` + strconv.Itoa(f.seq) + `"`
	f.mu.Unlock()

	if f.onPut != nil {
		f.onPut(key)
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	delete(f.etags, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := min(start+f.pageSize, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeS3) keysWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

var base = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfig(salt string) models.VaultConfig {
	return models.VaultConfig{
		Version: 1,
		Salt:    models.Salt(salt),
		KDF:     models.KDFParams{Algorithm: models.KDFArgon2id, Time: 3, MemoryKiB: 65536, Threads: 4, KeyLen: 32},
		Verifier: models.Verifier{
			Version: 1, Algorithm: models.AlgAES256GCM, Nonce: []byte("nonce"), Ciphertext: []byte("ct"),
		},
		CreatedAt: base,
	}
}

func testRecord(id string, offset time.Duration) models.EncryptedRecord {
	return models.EncryptedRecord{
		ID: id, Version: 1, Algorithm: models.AlgXChaCha20Poly1305,
		Nonce: []byte("n-" + id), Ciphertext: []byte("c-" + id),
		CreatedAt: base.Add(offset), UpdatedAt: base.Add(offset),
	}
}

func ids(recs []models.EncryptedRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestStore_ConfigLifecycle(t *testing.T) {
	s := New(newFakeS3(), "vault")
	ctx := context.Background()

	_, err := s.GetConfig(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, s.PutConfig(ctx, "u1", testConfig("salt-1")))
	assert.ErrorIs(t, s.PutConfig(ctx, "u1", testConfig("salt-2")), common.ErrAlreadyExists)

	got, err := s.GetConfig(ctx, "u1")
	require.NoError(t, err)
	want := testConfig("salt-1")
	want.UserID = "u1"
	assert.Equal(t, &want, got)
}

func TestStore_RecordsAreOrderedAndPaged(t *testing.T) {
	s := New(newFakeS3(), "vault")
	ctx := context.Background()

	records, err := s.ListRecords(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, records, "no vault, no records")

	require.NoError(t, s.PutConfig(ctx, "u1", testConfig("salt")))
	require.NoError(t, s.PutRecord(ctx, "u1", testRecord("c", 3*time.Second)))
	require.NoError(t, s.PutRecord(ctx, "u1", testRecord("a", 1*time.Second)))
	require.NoError(t, s.PutRecord(ctx, "u1", testRecord("b", 2*time.Second)))
	require.NoError(t, s.PutRecord(ctx, "u1", testRecord("a2", 1*time.Second)))

	records, err = s.ListRecords(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a2", "b", "c"}, ids(records))
	assert.Equal(t, testRecord("b", 2*time.Second), records[2])
}

func TestStore_PutRecordWithoutVault(t *testing.T) {
	s := New(newFakeS3(), "vault")

	err := s.PutRecord(context.Background(), "ghost", testRecord("a", 0))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStore_PutRecordKeepsCreatedAt(t *testing.T) {
	s := New(newFakeS3(), "vault")
	ctx := context.Background()
	require.NoError(t, s.PutConfig(ctx, "u1", testConfig("salt")))

	require.NoError(t, s.PutRecord(ctx, "u1", testRecord("a", 0)))

	updated := testRecord("a", time.Hour)
	updated.Ciphertext = []byte("new")
	require.NoError(t, s.PutRecord(ctx, "u1", updated))

	records, err := s.ListRecords(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, base, records[0].CreatedAt)
	assert.Equal(t, base.Add(time.Hour), records[0].UpdatedAt)
	assert.Equal(t, []byte("new"), records[0].Ciphertext)
}

func TestStore_DeleteRecord(t *testing.T) {
	s := New(newFakeS3(), "vault")
	ctx := context.Background()

	assert.ErrorIs(t, s.DeleteRecord(ctx, "u1", "a"), common.ErrNotFound)

	require.NoError(t, s.PutConfig(ctx, "u1", testConfig("salt")))
	require.NoError(t, s.PutRecord(ctx, "u1", testRecord("a", 0)))

	require.NoError(t, s.DeleteRecord(ctx, "u1", "a"))
	assert.ErrorIs(t, s.DeleteRecord(ctx, "u1", "a"), common.ErrNotFound)
}

func TestStore_RotateSwitchesGeneration(t *testing.T) {
	fake := newFakeS3()
	s := New(fake, "vault")
	ctx := context.Background()

	require.NoError(t, s.PutConfig(ctx, "u1", testConfig("old")))
	require.NoError(t, s.PutRecord(ctx, "u1", testRecord("a", 0)))
	require.NoError(t, s.PutRecord(ctx, "u1", testRecord("stale", time.Second)))

	rotated := []models.EncryptedRecord{testRecord("a", 0), testRecord("b", 2*time.Second)}
	rotated[0].Ciphertext = []byte("re-encrypted")
	require.NoError(t, s.Rotate(ctx, "u1", testConfig("new"), rotated))

	cfg, err := s.GetConfig(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.Salt("new"), cfg.Salt)

	records, err := s.ListRecords(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(records))
	assert.Equal(t, []byte("re-encrypted"), records[0].Ciphertext)

	assert.Empty(t, fake.keysWithPrefix("users/u1/g1/"), "old generation is removed")
	assert.Len(t, fake.keysWithPrefix("users/u1/g2/"), 2)
}

func TestStore_RotateWithoutVault(t *testing.T) {
	s := New(newFakeS3(), "vault")

	err := s.Rotate(context.Background(), "u1", testConfig("new"), nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStore_RotateFailureKeepsOldVault(t *testing.T) {
	fake := newFakeS3()
	s := New(fake, "vault")
	ctx := context.Background()

	require.NoError(t, s.PutConfig(ctx, "u1", testConfig("old")))
	require.NoError(t, s.PutRecord(ctx, "u1", testRecord("a", 0)))

	fake.failPut = func(key string) error {
		if strings.HasSuffix(key, "/b.json") {
			return errors.New("disk full")
		}
		return nil
	}

	err := s.Rotate(ctx, "u1", testConfig("new"),
		[]models.EncryptedRecord{testRecord("a", 0), testRecord("b", time.Second)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	cfg, err := s.GetConfig(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.Salt("old"), cfg.Salt)

	records, err := s.ListRecords(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(records))
	assert.Empty(t, fake.keysWithPrefix("users/u1/g2/"), "partial generation is cleaned up")

	fake.failPut = nil
	require.NoError(t, s.Rotate(ctx, "u1", testConfig("new"), []models.EncryptedRecord{testRecord("b", time.Second)}))
	records, err = s.ListRecords(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(records))
}

func TestStore_RotateDetectsConcurrentHeadChange(t *testing.T) {
	fake := newFakeS3()
	s := New(fake, "vault")
	ctx := context.Background()

	require.NoError(t, s.PutConfig(ctx, "u1", testConfig("old")))

	// another writer replaces the head while the new generation is written
	fake.onPut = func(key string) {
		if strings.HasPrefix(key, "users/u1/g2/") {
			fake.onPut = nil
			fake.mu.Lock()
			fake.seq++
			fake.etags[headKey("u1")] = `"other"`
			fake.mu.Unlock()
		}
	}

	err := s.Rotate(ctx, "u1", testConfig("new"), []models.EncryptedRecord{testRecord("a", 0)})
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.Empty(t, fake.keysWithPrefix("users/u1/g2/"))
}

func TestStore_MalformedHead(t *testing.T) {
	fake := newFakeS3()
	fake.objects[headKey("u1")] = []byte("{broken")
	s := New(fake, "vault")

	_, err := s.GetConfig(context.Background(), "u1")
	assert.ErrorIs(t, err, common.ErrMalformed)

	fake.objects[headKey("u1")] = []byte(`{"generation":0}`)
	_, err = s.GetConfig(context.Background(), "u1")
	assert.ErrorIs(t, err, common.ErrMalformed)
}

func TestStore_MalformedRecord(t *testing.T) {
	fake := newFakeS3()
	s := New(fake, "vault")
	ctx := context.Background()
	require.NoError(t, s.PutConfig(ctx, "u1", testConfig("salt")))
	fake.objects[recordKey("u1", 1, "bad")] = []byte("not json")

	_, err := s.ListRecords(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrMalformed)
}

func TestStore_RecordObjectHoldsSealedEnvelope(t *testing.T) {
	fake := newFakeS3()
	s := New(fake, "vault")
	ctx := context.Background()
	require.NoError(t, s.PutConfig(ctx, "u1", testConfig("salt")))
	require.NoError(t, s.PutRecord(ctx, "u1", testRecord("a", 0)))

	var obj recordObject
	require.NoError(t, json.Unmarshal(fake.objects[recordKey("u1", 1, "a")], &obj))
	sealed, err := cryptox.ParseSealed(obj.Sealed)
	require.NoError(t, err)
	assert.Equal(t, models.AlgXChaCha20Poly1305, sealed.Algorithm)
	assert.Equal(t, []byte("c-a"), sealed.Ciphertext)
}

func TestStore_RejectsUnknownEnvelope(t *testing.T) {
	s := New(newFakeS3(), "vault")
	ctx := context.Background()
	require.NoError(t, s.PutConfig(ctx, "u1", testConfig("salt")))

	bad := testRecord("a", 0)
	bad.Algorithm = 42
	assert.ErrorIs(t, s.PutRecord(ctx, "u1", bad), common.ErrMalformed)
	assert.ErrorIs(t, s.Rotate(ctx, "u1", testConfig("new"), []models.EncryptedRecord{bad}), common.ErrMalformed)

	cfg, err := s.GetConfig(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.Salt("salt"), cfg.Salt, "a refused rotation keeps the head")
}

func TestStore_CorruptSealedEnvelope(t *testing.T) {
	fake := newFakeS3()
	s := New(fake, "vault")
	ctx := context.Background()
	require.NoError(t, s.PutConfig(ctx, "u1", testConfig("salt")))
	fake.objects[recordKey("u1", 1, "bad")] = []byte(`{"id":"bad","sealed":"//8="}`)

	_, err := s.ListRecords(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrMalformed)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "users/u1/vault.json", headKey("u1"))
	assert.Equal(t, "users/u1/g3/", generationPrefix("u1", 3))
	assert.Equal(t, "users/u1/g3/r1.json", recordKey("u1", 3, "r1"))
}

func TestNewS3Client_UsesConfig(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })

	cfg := &config.Config{}
	cfg.LoadDefaults()

	client, err := NewS3Client(context.Background(), cfg)
	require.NoError(t, err)

	opts := client.Options()
	assert.Equal(t, "us-east-1", opts.Region)
	assert.Equal(t, "http://127.0.0.1:9000/", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)

	creds, err := opts.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin", creds.AccessKeyID)
	assert.Equal(t, "secretpassword", creds.SecretAccessKey)
}

func TestNewS3Client_LoadError(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}

	_, err := NewS3Client(context.Background(), &config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no config")
}
