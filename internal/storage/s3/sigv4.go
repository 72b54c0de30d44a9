package s3

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	iso8601Basic = "20060102T150405Z"
	dateOnly     = "20060102"
	awsRequest   = "aws4_request"
	service      = "s3"
	algorithm    = "AWS4-HMAC-SHA256"
)

// Signer computes AWS Signature Version 4 signatures for S3 requests. It
// holds no connection state; one Signer is shared by every request a
// vault's S3 engine issues.
type Signer struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// Sign attaches the Authorization, x-amz-date, and x-amz-content-sha256
// headers required for SigV4 to req, using payloadSHA256 (hex-encoded) as
// the request body hash. Callers that stream the body must still provide
// its digest, computed up front.
func (s *Signer) Sign(req *http.Request, payloadSHA256 string, now time.Time) {
	amzDate := now.UTC().Format(iso8601Basic)
	dateStamp := now.UTC().Format(dateOnly)

	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("x-amz-content-sha256", payloadSHA256)
	if req.Host == "" {
		req.Host = req.URL.Host
	}

	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL.Path),
		canonicalQuery(req.URL.Query()),
		canonicalHeaders,
		signedHeaders,
		payloadSHA256,
	}, "\n")

	scope := strings.Join([]string{dateStamp, s.Region, service, awsRequest}, "/")
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	signingKey := s.signingKey(dateStamp)
	signature := hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))

	authHeader := algorithm + " " +
		"Credential=" + s.AccessKeyID + "/" + scope + ", " +
		"SignedHeaders=" + signedHeaders + ", " +
		"Signature=" + signature
	req.Header.Set("Authorization", authHeader)
}

func (s *Signer) signingKey(dateStamp string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+s.SecretAccessKey), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(s.Region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte(awsRequest))
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalURI percent-encodes every path segment per the RFC 3986
// unreserved set, preserving the slashes that separate segments.
func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = encodeRFC3986(seg)
	}
	return strings.Join(segments, "/")
}

func encodeRFC3986(s string) string {
	var sb strings.Builder
	for _, b := range []byte(s) {
		if isUnreserved(b) {
			sb.WriteByte(b)
		} else {
			sb.WriteString("%")
			sb.WriteString(strings.ToUpper(hex.EncodeToString([]byte{b})))
		}
	}
	return sb.String()
}

func isUnreserved(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '.' || b == '_' || b == '~':
		return true
	default:
		return false
	}
}

func canonicalQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, encodeRFC3986(k)+"="+encodeRFC3986(v))
		}
	}
	return strings.Join(parts, "&")
}

// canonicalizeHeaders returns the canonical header block and the
// semicolon-joined signed header list. Host, Range, Content-Type, and every
// x-amz-* header are always signed.
func canonicalizeHeaders(req *http.Request) (canonical, signed string) {
	headerSet := map[string]string{
		"host": req.Host,
	}
	var names []string
	names = append(names, "host")

	for name, values := range req.Header {
		lower := strings.ToLower(name)
		if lower == "host" {
			continue
		}
		if lower != "content-type" && lower != "range" && !strings.HasPrefix(lower, "x-amz-") {
			continue
		}
		headerSet[lower] = strings.Join(values, ",")
		names = append(names, lower)
	}

	sort.Strings(names)

	var canonicalBuilder strings.Builder
	for _, name := range names {
		canonicalBuilder.WriteString(name)
		canonicalBuilder.WriteString(":")
		canonicalBuilder.WriteString(strings.TrimSpace(headerSet[name]))
		canonicalBuilder.WriteString("\n")
	}

	return canonicalBuilder.String(), strings.Join(names, ";")
}
