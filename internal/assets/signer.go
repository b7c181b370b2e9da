package assets

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SignRequest carries the parameters a client wants signed for an upload.
type SignRequest struct {
	Folder   string `json:"folder,omitempty"`
	Format   string `json:"format,omitempty"`
	PublicID string `json:"public_id,omitempty"`
}

// SignedParams is the signing service response: the signature, the signed
// timestamp, the public credentials, and the echoed parameters. The secret
// itself never appears here.
type SignedParams struct {
	Signature string            `json:"signature"`
	Timestamp int64             `json:"timestamp"`
	APIKey    string            `json:"api_key"`
	CloudName string            `json:"cloud_name"`
	Params    map[string]string `json:"params"`
}

// Signer issues and verifies upload signatures. The signature is the hex
// SHA-1 of the sorted key=value parameter pairs joined with '&', with the
// server-held secret appended.
type Signer struct {
	secret    string
	apiKey    string
	cloudName string
	now       func() time.Time
}

func NewSigner(secret, apiKey, cloudName string) *Signer {
	return &Signer{secret: secret, apiKey: apiKey, cloudName: cloudName, now: time.Now}
}

// Sign produces signed upload parameters for the request.
func (s *Signer) Sign(req SignRequest) SignedParams {
	ts := s.now().Unix()

	params := map[string]string{
		"timestamp": strconv.FormatInt(ts, 10),
	}
	if req.Folder != "" {
		params["folder"] = req.Folder
	}
	if req.Format != "" {
		params["format"] = req.Format
	}
	if req.PublicID != "" {
		params["public_id"] = req.PublicID
	}

	return SignedParams{
		Signature: s.signature(params),
		Timestamp: ts,
		APIKey:    s.apiKey,
		CloudName: s.cloudName,
		Params:    params,
	}
}

// Verify checks that signed parameters carry a signature this signer would
// have produced.
func (s *Signer) Verify(signed SignedParams) bool {
	return signed.Signature != "" && signed.Signature == s.signature(signed.Params)
}

func (s *Signer) signature(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + s.secret))
	return hex.EncodeToString(sum[:])
}
