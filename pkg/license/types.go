package license

// DefaultProduct is stamped into every payload unless configured otherwise.
const DefaultProduct = "SubsFinder Pro (Offline)"

// DefaultPlan is the plan issued when none is requested.
const DefaultPlan = "Pro"

// Payload is the signed body of a license. The JSON keys are part of the wire
// format shared with the verifier.
type Payload struct {
	Product  string `json:"product"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Plan     string `json:"plan"`
	Lifetime bool   `json:"lifetime"`
	// IssuedAt is in epoch seconds.
	IssuedAt int64 `json:"issued_at"`
	// Nonce is 8 random bytes in lowercase hex.
	Nonce string `json:"nonce"`
}

// Request is what the operator asks for.
type Request struct {
	Name     string
	Email    string
	Plan     string
	Lifetime bool
}

// Issued is the result of a successful issuance.
type Issued struct {
	// License is "<base64 payload>.<base64 signature>".
	License string
	Payload Payload
	// Path is where the license was persisted.
	Path string
	// CID is a CIDv1 (raw, sha2-256) of the License bytes.
	CID string
}
