// Package s3 implements the S3 Engine (C4): a StorageEngine over an
// S3-compatible endpoint, signed with a hand-rolled AWS SigV4 implementation
// (kept byte-exact-testable against the published AWS test vectors rather
// than delegated to a vendor SDK).
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vaulthalla/vaulthalla/internal/circuit"
	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
	"github.com/vaulthalla/vaulthalla/pkg/retry"
	"github.com/vaulthalla/vaulthalla/pkg/utils"
	"github.com/vaulthalla/vaulthalla/pkg/vherrors"
)

// MinPartSize is the S3 multipart minimum part size (5 MiB), except for the
// last part of an upload.
const MinPartSize = 5 * 1024 * 1024

// Config describes an S3-compatible endpoint and the bucket backing one
// vault, per spec §6's external-interface fields.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PartSize        int64
	ConnectTimeout  time.Duration
	RequestTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.PartSize <= 0 {
		c.PartSize = MinPartSize
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Minute
	}
	return c
}

// Engine is a StorageEngine implementation over an S3-compatible bucket.
type Engine struct {
	cfg       Config
	signer    *Signer
	client    *http.Client
	breaker   *circuit.CircuitBreaker
	retryer   *retry.Retryer
	multipart *MultipartStateManager
	logger    *utils.StructuredLogger
}

// New constructs an S3 Engine for one vault's bucket.
func New(cfg Config, logger *utils.StructuredLogger) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger, _ = utils.NewStructuredLogger(nil)
	}
	return &Engine{
		cfg: cfg,
		signer: &Signer{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Region:          cfg.Region,
		},
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		},
		breaker:   circuit.NewCircuitBreaker("s3-"+cfg.Bucket, circuit.Config{}),
		retryer:   retry.New(retry.DefaultConfig()),
		multipart: NewMultipartStateManager(),
		logger:    logger.WithComponent("s3-engine").WithField("bucket", cfg.Bucket),
	}
}

func (e *Engine) objectKey(rel string) string {
	clean := strings.TrimPrefix(strings.TrimPrefix(rel, "/"), "./")
	return clean
}

func (e *Engine) objectURL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = encodeRFC3986(seg)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(e.cfg.Endpoint, "/"), e.cfg.Bucket, strings.Join(segments, "/"))
}

// do signs and executes req behind the circuit breaker, classifying a
// non-2xx response or transport failure as a Network error.
func (e *Engine) do(req *http.Request, payloadSHA256 string) (*http.Response, error) {
	e.signer.Sign(req, payloadSHA256, time.Now())

	var resp *http.Response
	err := e.breaker.Execute(func() error {
		var doErr error
		resp, doErr = e.client.Do(req)
		if doErr != nil {
			return vherrors.Wrap(vherrors.Network, doErr, "S3 request failed").
				WithComponent("s3-engine").WithDetail("url", req.URL.String())
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return vherrors.New(vherrors.Network, "S3 returned retryable status").
				WithComponent("s3-engine").WithDetail("status", resp.StatusCode).WithDetail("body", string(body))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// doWithRetry wraps do with the S3 retry policy (up to 3 attempts on
// Network failures).
func (e *Engine) doWithRetry(ctx context.Context, newReq func() (*http.Request, string, error)) (*http.Response, error) {
	var resp *http.Response
	err := e.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		req, sha, err := newReq()
		if err != nil {
			return err
		}
		req = req.WithContext(ctx)
		r, err := e.do(req, sha)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

// Mkdir creates no directory entity, since object stores have none. Instead
// a zero-byte marker object is written under the prefix so List sees the
// directory even before any file is placed beneath it, matching the
// convention most S3-compatible consoles use for "folders".
func (e *Engine) Mkdir(ctx context.Context, rel string) error {
	key := e.objectKey(rel)
	if key == "" {
		return nil
	}
	if !strings.HasSuffix(key, "/") {
		key += "/"
	}
	return e.putObject(ctx, key, nil, nil)
}

// Write stores data at rel, choosing single-PUT or multipart upload by size.
func (e *Engine) Write(ctx context.Context, rel string, data []byte, overwrite bool) error {
	key := e.objectKey(rel)

	if !overwrite {
		exists, err := e.Exists(ctx, rel)
		if err != nil {
			return err
		}
		if exists {
			return vherrors.New(vherrors.AlreadyExists, "object already exists").
				WithComponent("s3-engine").WithOperation("write").WithDetail("key", key)
		}
	}

	if int64(len(data)) > e.cfg.PartSize {
		return e.multipartUpload(ctx, key, data)
	}
	return e.putObject(ctx, key, data, nil)
}

// putObject issues a single PUT, optionally attaching metadata headers
// (x-amz-meta-*) for encrypted payloads.
func (e *Engine) putObject(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	sum := sha256.Sum256(data)
	sha := hex.EncodeToString(sum[:])

	resp, err := e.doWithRetry(ctx, func() (*http.Request, string, error) {
		req, err := http.NewRequest(http.MethodPut, e.objectURL(key), bytes.NewReader(data))
		if err != nil {
			return nil, "", vherrors.Wrap(vherrors.Internal, err, "failed to build PUT request").
				WithComponent("s3-engine")
		}
		req.ContentLength = int64(len(data))
		for k, v := range metadata {
			req.Header.Set("x-amz-meta-"+k, v)
		}
		return req, sha, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return vherrors.New(vherrors.Network, "PUT rejected").
			WithComponent("s3-engine").WithDetail("status", resp.StatusCode).WithDetail("body", string(body))
	}
	etag := strings.Trim(resp.Header.Get("ETag"), `"`)
	if etag == "" {
		return vherrors.New(vherrors.Corruption, "PUT returned empty ETag").
			WithComponent("s3-engine").WithDetail("key", key)
	}
	return nil
}

// PutObjectWithMetadata is the executor's entry point for an encrypted
// upload, which must attach x-amz-meta-iv / x-amz-meta-keyver per §9.
func (e *Engine) PutObjectWithMetadata(ctx context.Context, rel string, data []byte, metadata map[string]string) error {
	key := e.objectKey(rel)
	if int64(len(data)) > e.cfg.PartSize {
		return e.multipartUploadWithMetadata(ctx, key, data, metadata)
	}
	return e.putObject(ctx, key, data, metadata)
}

// multipartUpload drives initiate -> upload_part(*N) -> complete, aborting
// on any part failure after exhausting retries. Upload_id is the only
// in-flight state, tracked in e.multipart for observability.
func (e *Engine) multipartUpload(ctx context.Context, key string, data []byte) error {
	return e.multipartUploadWithMetadata(ctx, key, data, nil)
}

func (e *Engine) multipartUploadWithMetadata(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	uploadID, err := e.initiateMultipart(ctx, key, metadata)
	if err != nil {
		return err
	}

	state := NewMultipartUploadState(uploadID, e.cfg.Bucket, key, int64(len(data)), e.cfg.PartSize)
	e.multipart.TrackUpload(state)
	defer e.multipart.RemoveUpload(uploadID)

	parts := splitParts(data, e.cfg.PartSize)
	etags := make([]string, len(parts))

	for i, part := range parts {
		select {
		case <-ctx.Done():
			e.abortMultipart(context.Background(), key, uploadID)
			return vherrors.Wrap(vherrors.Cancelled, ctx.Err(), "multipart upload cancelled").
				WithComponent("s3-engine").WithDetail("key", key)
		default:
		}

		etag, uploadErr := e.uploadPartWithRetry(ctx, key, uploadID, i+1, part)
		if uploadErr != nil {
			e.multipart.UpdatePartStatus(uploadID, i+1, int64(len(part)), "", uploadErr)
			e.abortMultipart(context.Background(), key, uploadID)
			e.multipart.MarkUploadFailed(uploadID)
			return uploadErr
		}
		e.multipart.UpdatePartStatus(uploadID, i+1, int64(len(part)), etag, nil)
		etags[i] = etag
	}

	if err := e.completeMultipart(ctx, key, uploadID, etags); err != nil {
		e.abortMultipart(context.Background(), key, uploadID)
		e.multipart.MarkUploadFailed(uploadID)
		return err
	}
	e.multipart.MarkUploadCompleted(uploadID)
	return nil
}

func splitParts(data []byte, partSize int64) [][]byte {
	if partSize <= 0 {
		partSize = MinPartSize
	}
	var parts [][]byte
	for offset := int64(0); offset < int64(len(data)); offset += partSize {
		end := offset + partSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		parts = append(parts, data[offset:end])
	}
	if len(parts) == 0 {
		parts = append(parts, []byte{})
	}
	return parts
}

type initiateMultipartResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	UploadID string   `xml:"UploadId"`
}

func (e *Engine) initiateMultipart(ctx context.Context, key string, metadata map[string]string) (string, error) {
	sha := hexSHA256(nil)
	resp, err := e.doWithRetry(ctx, func() (*http.Request, string, error) {
		u := e.objectURL(key) + "?uploads"
		req, err := http.NewRequest(http.MethodPost, u, nil)
		if err != nil {
			return nil, "", vherrors.Wrap(vherrors.Internal, err, "failed to build initiate-multipart request").
				WithComponent("s3-engine")
		}
		req.URL.RawQuery = "uploads="
		for k, v := range metadata {
			req.Header.Set("x-amz-meta-"+k, v)
		}
		return req, sha, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result initiateMultipartResult
	body, _ := io.ReadAll(resp.Body)
	if err := xml.Unmarshal(body, &result); err != nil {
		return "", vherrors.Wrap(vherrors.Network, err, "failed to parse initiate-multipart response").
			WithComponent("s3-engine")
	}
	if result.UploadID == "" {
		return "", vherrors.New(vherrors.Network, "initiate-multipart returned no upload id").
			WithComponent("s3-engine").WithDetail("key", key)
	}
	return result.UploadID, nil
}

func (e *Engine) uploadPartWithRetry(ctx context.Context, key, uploadID string, partNumber int, data []byte) (string, error) {
	var etag string
	err := e.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		sum := sha256.Sum256(data)
		sha := hex.EncodeToString(sum[:])

		req, err := http.NewRequest(http.MethodPut, e.objectURL(key), bytes.NewReader(data))
		if err != nil {
			return vherrors.Wrap(vherrors.Internal, err, "failed to build upload-part request").
				WithComponent("s3-engine")
		}
		q := url.Values{}
		q.Set("partNumber", strconv.Itoa(partNumber))
		q.Set("uploadId", uploadID)
		req.URL.RawQuery = q.Encode()
		req.ContentLength = int64(len(data))

		resp, doErr := e.do(req.WithContext(ctx), sha)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return vherrors.New(vherrors.Network, "upload-part rejected").
				WithComponent("s3-engine").WithDetail("status", resp.StatusCode).WithDetail("body", string(body))
		}
		etag = strings.Trim(resp.Header.Get("ETag"), `"`)
		if etag == "" {
			return vherrors.New(vherrors.Corruption, "upload-part returned empty ETag").
				WithComponent("s3-engine").WithDetail("part", partNumber)
		}
		return nil
	})
	return etag, err
}

type completeMultipartUpload struct {
	XMLName xml.Name               `xml:"CompleteMultipartUpload"`
	Parts   []completedMultipartPart `xml:"Part"`
}

type completedMultipartPart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

func (e *Engine) completeMultipart(ctx context.Context, key, uploadID string, etags []string) error {
	body := completeMultipartUpload{}
	for i, tag := range etags {
		body.Parts = append(body.Parts, completedMultipartPart{PartNumber: i + 1, ETag: tag})
	}
	payload, err := xml.Marshal(body)
	if err != nil {
		return vherrors.Wrap(vherrors.Internal, err, "failed to marshal complete-multipart body").
			WithComponent("s3-engine")
	}

	sum := sha256.Sum256(payload)
	sha := hex.EncodeToString(sum[:])

	resp, err := e.doWithRetry(ctx, func() (*http.Request, string, error) {
		req, err := http.NewRequest(http.MethodPost, e.objectURL(key), bytes.NewReader(payload))
		if err != nil {
			return nil, "", vherrors.Wrap(vherrors.Internal, err, "failed to build complete-multipart request").
				WithComponent("s3-engine")
		}
		q := url.Values{}
		q.Set("uploadId", uploadID)
		req.URL.RawQuery = q.Encode()
		req.ContentLength = int64(len(payload))
		return req, sha, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return vherrors.New(vherrors.Network, "complete-multipart rejected").
			WithComponent("s3-engine").WithDetail("status", resp.StatusCode).WithDetail("body", string(respBody))
	}
	return nil
}

func (e *Engine) abortMultipart(ctx context.Context, key, uploadID string) {
	sha := hexSHA256(nil)
	req, err := http.NewRequest(http.MethodDelete, e.objectURL(key), nil)
	if err != nil {
		return
	}
	q := url.Values{}
	q.Set("uploadId", uploadID)
	req.URL.RawQuery = q.Encode()

	resp, err := e.do(req.WithContext(ctx), sha)
	if err != nil {
		e.logger.Warnf("abort-multipart failed for key %s upload %s: %v", key, uploadID, err)
		return
	}
	resp.Body.Close()
}

// Read GETs the full object at rel.
func (e *Engine) Read(ctx context.Context, rel string) ([]byte, error) {
	key := e.objectKey(rel)

	resp, err := e.doWithRetry(ctx, func() (*http.Request, string, error) {
		req, err := http.NewRequest(http.MethodGet, e.objectURL(key), nil)
		if err != nil {
			return nil, "", vherrors.Wrap(vherrors.Internal, err, "failed to build GET request").
				WithComponent("s3-engine")
		}
		return req, hexSHA256(nil), nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, vherrors.New(vherrors.NotFound, "object not found").
			WithComponent("s3-engine").WithOperation("read").WithDetail("key", key)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, vherrors.New(vherrors.Network, "GET rejected").
			WithComponent("s3-engine").WithDetail("status", resp.StatusCode).WithDetail("body", string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vherrors.Wrap(vherrors.Network, err, "failed to read GET response body").
			WithComponent("s3-engine")
	}
	return data, nil
}

// ReadWithMetadata GETs the object and returns any x-amz-meta-* headers
// alongside its bytes, used by the executor to detect upstream encryption.
func (e *Engine) ReadWithMetadata(ctx context.Context, rel string) ([]byte, map[string]string, error) {
	key := e.objectKey(rel)

	resp, err := e.doWithRetry(ctx, func() (*http.Request, string, error) {
		req, err := http.NewRequest(http.MethodGet, e.objectURL(key), nil)
		if err != nil {
			return nil, "", vherrors.Wrap(vherrors.Internal, err, "failed to build GET request").
				WithComponent("s3-engine")
		}
		return req, hexSHA256(nil), nil
	})
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, vherrors.New(vherrors.NotFound, "object not found").
			WithComponent("s3-engine").WithOperation("read").WithDetail("key", key)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, nil, vherrors.New(vherrors.Network, "GET rejected").
			WithComponent("s3-engine").WithDetail("status", resp.StatusCode).WithDetail("body", string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, vherrors.Wrap(vherrors.Network, err, "failed to read GET response body").
			WithComponent("s3-engine")
	}

	metadata := make(map[string]string)
	for header, values := range resp.Header {
		lower := strings.ToLower(header)
		if strings.HasPrefix(lower, "x-amz-meta-") {
			metadata[strings.TrimPrefix(lower, "x-amz-meta-")] = strings.Join(values, ",")
		}
	}
	return data, metadata, nil
}

// Delete issues an S3 DELETE for rel.
func (e *Engine) Delete(ctx context.Context, rel string) error {
	key := e.objectKey(rel)

	resp, err := e.doWithRetry(ctx, func() (*http.Request, string, error) {
		req, err := http.NewRequest(http.MethodDelete, e.objectURL(key), nil)
		if err != nil {
			return nil, "", vherrors.Wrap(vherrors.Internal, err, "failed to build DELETE request").
				WithComponent("s3-engine")
		}
		return req, hexSHA256(nil), nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return vherrors.New(vherrors.NotFound, "object not found").
				WithComponent("s3-engine").WithOperation("delete").WithDetail("key", key)
		}
		body, _ := io.ReadAll(resp.Body)
		return vherrors.New(vherrors.Network, "DELETE rejected").
			WithComponent("s3-engine").WithDetail("status", resp.StatusCode).WithDetail("body", string(body))
	}
	return nil
}

// Exists performs a HEAD request for rel.
func (e *Engine) Exists(ctx context.Context, rel string) (bool, error) {
	key := e.objectKey(rel)

	resp, err := e.doWithRetry(ctx, func() (*http.Request, string, error) {
		req, err := http.NewRequest(http.MethodHead, e.objectURL(key), nil)
		if err != nil {
			return nil, "", vherrors.Wrap(vherrors.Internal, err, "failed to build HEAD request").
				WithComponent("s3-engine")
		}
		return req, hexSHA256(nil), nil
	})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, vherrors.New(vherrors.Network, "HEAD rejected").
			WithComponent("s3-engine").WithDetail("status", resp.StatusCode)
	}
	return true, nil
}

type listBucketResult struct {
	XMLName               xml.Name        `xml:"ListBucketResult"`
	Contents              []listedContent `xml:"Contents"`
	CommonPrefixes        []commonPrefix  `xml:"CommonPrefixes"`
	IsTruncated           bool            `xml:"IsTruncated"`
	NextContinuationToken string          `xml:"NextContinuationToken"`
}

type listedContent struct {
	Key          string `xml:"Key"`
	Size         int64  `xml:"Size"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
}

type commonPrefix struct {
	Prefix string `xml:"Prefix"`
}

// List issues a LISTv2 request over the given vault-relative prefix,
// following continuation tokens until IsTruncated is false. If recursive is
// false, the request uses "/" as a delimiter so nested entries are folded
// into CommonPrefixes instead of being listed individually.
func (e *Engine) List(ctx context.Context, rel string, recursive bool) ([]vaulttypes.ListedFile, error) {
	prefix := e.objectKey(rel)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var out []vaulttypes.ListedFile
	continuationToken := ""
	for {
		result, err := e.listOnce(ctx, prefix, continuationToken, recursive)
		if err != nil {
			return nil, err
		}

		for _, c := range result.Contents {
			if c.Key == prefix {
				continue // the directory marker object itself
			}
			modified, _ := time.Parse(time.RFC3339, c.LastModified)
			kind := vaulttypes.KindFile
			if strings.HasSuffix(c.Key, "/") {
				kind = vaulttypes.KindDirectory
			}
			out = append(out, vaulttypes.ListedFile{
				Path:        "/" + c.Key,
				Size:        c.Size,
				Modified:    modified,
				ContentHash: strings.Trim(c.ETag, `"`),
				Kind:        kind,
			})
		}
		for _, p := range result.CommonPrefixes {
			out = append(out, vaulttypes.ListedFile{
				Path: "/" + p.Prefix,
				Kind: vaulttypes.KindDirectory,
			})
		}

		if !result.IsTruncated {
			break
		}
		continuationToken = result.NextContinuationToken
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (e *Engine) listOnce(ctx context.Context, prefix, continuationToken string, recursive bool) (*listBucketResult, error) {
	resp, err := e.doWithRetry(ctx, func() (*http.Request, string, error) {
		q := url.Values{}
		q.Set("list-type", "2")
		if prefix != "" {
			q.Set("prefix", prefix)
		}
		if !recursive {
			q.Set("delimiter", "/")
		}
		if continuationToken != "" {
			q.Set("continuation-token", continuationToken)
		}

		u := fmt.Sprintf("%s/%s", strings.TrimRight(e.cfg.Endpoint, "/"), e.cfg.Bucket)
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, "", vherrors.Wrap(vherrors.Internal, err, "failed to build LIST request").
				WithComponent("s3-engine")
		}
		req.URL.RawQuery = q.Encode()
		return req, hexSHA256(nil), nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, vherrors.New(vherrors.Network, "LIST rejected").
			WithComponent("s3-engine").WithDetail("status", resp.StatusCode).WithDetail("body", string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vherrors.Wrap(vherrors.Network, err, "failed to read LIST response body").
			WithComponent("s3-engine")
	}

	var result listBucketResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, vherrors.Wrap(vherrors.Network, err, "failed to parse LIST response").
			WithComponent("s3-engine")
	}
	return &result, nil
}

// Stat HEADs rel and maps the response into a ListedFile.
func (e *Engine) Stat(ctx context.Context, rel string) (*vaulttypes.ListedFile, error) {
	key := e.objectKey(rel)

	resp, err := e.doWithRetry(ctx, func() (*http.Request, string, error) {
		req, err := http.NewRequest(http.MethodHead, e.objectURL(key), nil)
		if err != nil {
			return nil, "", vherrors.Wrap(vherrors.Internal, err, "failed to build HEAD request").
				WithComponent("s3-engine")
		}
		return req, hexSHA256(nil), nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, vherrors.New(vherrors.NotFound, "object not found").
			WithComponent("s3-engine").WithOperation("stat").WithDetail("key", key)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, vherrors.New(vherrors.Network, "HEAD rejected").
			WithComponent("s3-engine").WithDetail("status", resp.StatusCode)
	}

	size, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	modified, _ := time.Parse(http.TimeFormat, resp.Header.Get("Last-Modified"))
	return &vaulttypes.ListedFile{
		Path:        rel,
		Size:        size,
		Modified:    modified,
		ContentHash: strings.Trim(resp.Header.Get("ETag"), `"`),
		Kind:        vaulttypes.KindFile,
	}, nil
}

// Abs returns the logical object key for rel.
func (e *Engine) Abs(rel string) string {
	return e.objectKey(rel)
}

// Type reports VaultS3.
func (e *Engine) Type() vaulttypes.VaultType {
	return vaulttypes.VaultS3
}

// ResumableUploads reports every multipart upload this engine is currently
// tracking (in flight or finished but not yet pruned), for a vault admin
// surface showing resumable-upload progress.
func (e *Engine) ResumableUploads() []ResumableUploadStatus {
	states := e.multipart.GetAllUploads()
	out := make([]ResumableUploadStatus, 0, len(states))
	for _, state := range states {
		out = append(out, state.Snapshot())
	}
	return out
}

// InProgressUploads reports only the uploads still actively transferring
// parts, excluding ones that already reached a terminal status.
func (e *Engine) InProgressUploads() []ResumableUploadStatus {
	states := e.multipart.GetInProgressUploads()
	out := make([]ResumableUploadStatus, 0, len(states))
	for _, state := range states {
		out = append(out, state.Snapshot())
	}
	return out
}

// UploadStatus reports the tracked status of one multipart upload by ID.
func (e *Engine) UploadStatus(uploadID string) (ResumableUploadStatus, bool) {
	state, ok := e.multipart.GetUploadState(uploadID)
	if !ok {
		return ResumableUploadStatus{}, false
	}
	return state.Snapshot(), true
}

// PendingUploadCount reports how many multipart uploads this engine is
// currently tracking, in any status.
func (e *Engine) PendingUploadCount() int {
	return e.multipart.GetUploadCount()
}

// PruneStaleUploads drops tracked state for uploads that reached a terminal
// status (completed, failed, aborted) more than maxAge ago, so a long-lived
// engine's multipart tracking map doesn't grow unbounded. It returns the
// number of entries removed.
func (e *Engine) PruneStaleUploads(maxAge time.Duration) int {
	return e.multipart.CleanupOldUploads(maxAge)
}
