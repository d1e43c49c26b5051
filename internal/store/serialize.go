package store

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
)

// envelope is the self-describing text form a CachedResponse takes when
// stored in a string-only backend: JSON with the body base64-encoded so
// binary assets survive round-tripping.
type envelope struct {
	StatusCode  int                 `json:"status_code"`
	Header      map[string][]string `json:"header"`
	Body        string              `json:"body_b64"`
	ContentType string              `json:"content_type"`
	StoredAt    time.Time           `json:"stored_at"`
	SourceURL   string              `json:"source_url"`
	ArchiveDate string              `json:"archive_date"`
}

// EncodeResponse is the exported form of encodeResponse, used by
// internal/coldstore to write the same envelope format to S3 that
// Redis stores for the curated tier.
func EncodeResponse(resp *model.CachedResponse) ([]byte, error) {
	return encodeResponse(resp)
}

// DecodeResponse is the exported form of decodeResponse.
func DecodeResponse(raw []byte) (*model.CachedResponse, error) {
	return decodeResponse(raw)
}

func encodeResponse(resp *model.CachedResponse) ([]byte, error) {
	e := envelope{
		StatusCode:  resp.StatusCode,
		Header:      map[string][]string(resp.Header),
		Body:        base64.StdEncoding.EncodeToString(resp.Body),
		ContentType: resp.ContentType,
		StoredAt:    resp.StoredAt,
		SourceURL:   resp.SourceURL,
		ArchiveDate: resp.ArchiveDate,
	}
	return json.Marshal(e)
}

func decodeResponse(raw []byte) (*model.CachedResponse, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	body, err := base64.StdEncoding.DecodeString(e.Body)
	if err != nil {
		return nil, err
	}
	return &model.CachedResponse{
		StatusCode:  e.StatusCode,
		Header:      http.Header(e.Header),
		Body:        body,
		ContentType: e.ContentType,
		StoredAt:    e.StoredAt,
		SourceURL:   e.SourceURL,
		ArchiveDate: e.ArchiveDate,
	}, nil
}
