// Package blobstore keeps vault configs and encrypted records as objects in
// an S3-compatible bucket.
//
// Each user has a head object holding the vault config and the current
// record generation. Records live under a per-generation prefix, so a
// rotation writes a complete new generation first and then switches the
// head in one PutObject. Readers never see a half-rotated vault. A record
// object carries its envelope in the sealed binary layout of package
// cryptox next to the timestamps.
//
//	users/<user>/vault.json
//	users/<user>/g<generation>/<record id>.json
package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/cryptox"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/server/config"
	"github.com/dmitrijs2005/keyvault/internal/store"
)

const (
	rootPrefix = "users"
	headName   = "vault.json"
	jsonType   = "application/json"

	codePreconditionFailed = "PreconditionFailed"
)

// ErrConcurrentUpdate is returned by Rotate when the head object changed
// between read and write.
var ErrConcurrentUpdate = errors.New("vault changed concurrently")

// API is the subset of *s3.Client the store uses.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// NewS3Client builds an S3 client for the bucket settings in cfg. Path-style
// addressing is used so MinIO and similar servers work without DNS setup.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

// Store implements store.RecordStore on top of an S3 bucket.
type Store struct {
	client API
	bucket string
}

var _ store.RecordStore = (*Store)(nil)

func New(client API, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

type head struct {
	Generation uint64             `json:"generation"`
	Config     models.VaultConfig `json:"config"`
}

type recordObject struct {
	ID        string    `json:"id"`
	Sealed    []byte    `json:"sealed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// newRecordObject refuses envelopes that ParseSealed would not read back.
func newRecordObject(r models.EncryptedRecord) (recordObject, error) {
	b, err := cryptox.SealedFromRecord(r).MarshalBinary()
	if err != nil {
		return recordObject{}, fmt.Errorf("encode record %s: %w", r.ID, err)
	}
	if _, err := cryptox.ParseSealed(b); err != nil {
		return recordObject{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	return recordObject{ID: r.ID, Sealed: b, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}, nil
}

func (o recordObject) record() (models.EncryptedRecord, error) {
	sealed, err := cryptox.ParseSealed(o.Sealed)
	if err != nil {
		return models.EncryptedRecord{}, fmt.Errorf("record %s: %w", o.ID, err)
	}
	return models.EncryptedRecord{
		ID:         o.ID,
		Version:    sealed.Version,
		Algorithm:  sealed.Algorithm,
		Nonce:      sealed.Nonce,
		Ciphertext: sealed.Ciphertext,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}, nil
}

func userPrefix(userID string) string {
	return path.Join(rootPrefix, userID)
}

func headKey(userID string) string {
	return path.Join(userPrefix(userID), headName)
}

func generationPrefix(userID string, gen uint64) string {
	return path.Join(userPrefix(userID), "g"+strconv.FormatUint(gen, 10)) + "/"
}

func recordKey(userID string, gen uint64, id string) string {
	return generationPrefix(userID, gen) + id + ".json"
}

func (s *Store) GetConfig(ctx context.Context, userID string) (*models.VaultConfig, error) {
	h, _, err := s.readHead(ctx, userID)
	if err != nil {
		return nil, err
	}
	cfg := h.Config
	cfg.UserID = userID
	return &cfg, nil
}

// PutConfig creates the head object at generation 1. It relies on a
// conditional write, so a second call gives common.ErrAlreadyExists.
func (s *Store) PutConfig(ctx context.Context, userID string, cfg models.VaultConfig) error {
	body, err := json.Marshal(head{Generation: 1, Config: cfg})
	if err != nil {
		return fmt.Errorf("encode vault head: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(headKey(userID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(jsonType),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("put vault head: %w", err)
	}
	return nil
}

// ListRecords returns the records of the current generation oldest first.
// A user without a vault has no records.
func (s *Store) ListRecords(ctx context.Context, userID string) ([]models.EncryptedRecord, error) {
	h, _, err := s.readHead(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	keys, err := s.listKeys(ctx, generationPrefix(userID, h.Generation))
	if err != nil {
		return nil, err
	}

	result := make([]models.EncryptedRecord, 0, len(keys))
	for _, k := range keys {
		rec, err := s.getRecord(ctx, k)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, rec)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// PutRecord writes rec into the current generation. A rewrite keeps the
// stored CreatedAt.
func (s *Store) PutRecord(ctx context.Context, userID string, rec models.EncryptedRecord) error {
	h, _, err := s.readHead(ctx, userID)
	if err != nil {
		return err
	}

	obj, err := newRecordObject(rec)
	if err != nil {
		return err
	}

	key := recordKey(userID, h.Generation, rec.ID)

	var existing recordObject
	switch err := s.getJSON(ctx, key, &existing); {
	case err == nil:
		obj.CreatedAt = existing.CreatedAt
	case !errors.Is(err, common.ErrNotFound):
		return err
	}

	return s.putJSON(ctx, key, obj)
}

func (s *Store) DeleteRecord(ctx context.Context, userID, id string) error {
	h, _, err := s.readHead(ctx, userID)
	if err != nil {
		return err
	}

	key := recordKey(userID, h.Generation, id)
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		if isNotFound(err) {
			return common.ErrNotFound
		}
		return fmt.Errorf("head record: %w", err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Rotate writes records as the next generation and then replaces the head
// conditionally on its ETag. On failure before the switch the partial
// generation is removed; after the switch the old generation is removed.
func (s *Store) Rotate(ctx context.Context, userID string, cfg models.VaultConfig, records []models.EncryptedRecord) error {
	h, etag, err := s.readHead(ctx, userID)
	if err != nil {
		return err
	}

	objects := make([]recordObject, 0, len(records))
	for _, r := range records {
		obj, err := newRecordObject(r)
		if err != nil {
			return err
		}
		objects = append(objects, obj)
	}

	next := h.Generation + 1
	nextPrefix := generationPrefix(userID, next)

	// leftovers of an earlier failed rotation
	s.deletePrefix(ctx, nextPrefix)

	for _, obj := range objects {
		if err := s.putJSON(ctx, recordKey(userID, next, obj.ID), obj); err != nil {
			s.deletePrefix(ctx, nextPrefix)
			return err
		}
	}

	body, err := json.Marshal(head{Generation: next, Config: cfg})
	if err != nil {
		s.deletePrefix(ctx, nextPrefix)
		return fmt.Errorf("encode vault head: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(headKey(userID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(jsonType),
		IfMatch:     etag,
	})
	if err != nil {
		s.deletePrefix(ctx, nextPrefix)
		if isPreconditionFailed(err) {
			return ErrConcurrentUpdate
		}
		return fmt.Errorf("put vault head: %w", err)
	}

	s.deletePrefix(ctx, generationPrefix(userID, h.Generation))
	return nil
}

func (s *Store) readHead(ctx context.Context, userID string) (*head, *string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(headKey(userID)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, common.ErrNotFound
		}
		return nil, nil, fmt.Errorf("get vault head: %w", err)
	}
	defer out.Body.Close()

	var h head
	if err := json.NewDecoder(out.Body).Decode(&h); err != nil {
		return nil, nil, fmt.Errorf("%w: vault head: %v", common.ErrMalformed, err)
	}
	if h.Generation == 0 {
		return nil, nil, fmt.Errorf("%w: vault head without generation", common.ErrMalformed)
	}
	return &h, out.ETag, nil
}

func (s *Store) getRecord(ctx context.Context, key string) (models.EncryptedRecord, error) {
	var obj recordObject
	if err := s.getJSON(ctx, key, &obj); err != nil {
		return models.EncryptedRecord{}, err
	}
	return obj.record()
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return common.ErrNotFound
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrMalformed, key, err)
	}
	return nil
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(jsonType),
	}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, o := range page.Contents {
			k := aws.ToString(o.Key)
			if strings.HasSuffix(k, ".json") {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

// deletePrefix removes every object under prefix. Objects outside the
// current generation are unreachable, so failures only leave garbage.
func (s *Store) deletePrefix(ctx context.Context, prefix string) {
	keys, err := s.listKeys(ctx, prefix)
	if err != nil {
		return
	}
	for _, k := range keys {
		_, _ = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(k),
		})
	}
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound")
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == codePreconditionFailed
}
