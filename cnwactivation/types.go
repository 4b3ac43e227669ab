package cnwactivation

// License types reported in ActivationPayload.Type.
const (
	LicenseTypeNodeLocked     = "node-locked"
	LicenseTypeHostedFloating = "hosted-floating"
)

// Metadata is a key/value pair attached to a license or its user. Keys are
// matched case-insensitively.
type Metadata struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// LicenseMeterAttribute is the server's entitlement for a named counter.
type LicenseMeterAttribute struct {
	Name        string `json:"name"`
	AllowedUses int64  `json:"allowedUses"`
	TotalUses   int64  `json:"totalUses"`
}

// ActivationMeterAttribute is this activation's usage of a named counter.
type ActivationMeterAttribute struct {
	Name string `json:"name"`
	Uses int64  `json:"uses"`
}

// ActivationPayload is the claim set of a verified activation token.
// All timestamps are Unix seconds; zero means "not set".
//
// Only the signed token is persisted. A payload is trusted only while valid
// is set, which happens exclusively through ValidateActivation.
type ActivationPayload struct {
	ID                             string                     `json:"id"`
	ProductID                      string                     `json:"productId"`
	Key                            string                     `json:"key"`
	Fingerprint                    string                     `json:"fingerprint"`
	IssuedAt                       int64                      `json:"iat"`
	LeaseExpiresAt                 int64                      `json:"leaseExpiresAt"`
	AllowedClockOffset             int64                      `json:"allowedClockOffset"`
	ExpiresAt                      int64                      `json:"expiresAt"`
	ServerSyncInterval             int64                      `json:"serverSyncInterval"`
	ServerSyncGracePeriodExpiresAt int64                      `json:"serverSyncGracePeriodExpiresAt"`
	Suspended                      bool                       `json:"suspended"`
	Type                           string                     `json:"type"`
	Email                          string                     `json:"email"`
	Name                           string                     `json:"name"`
	Company                        string                     `json:"company"`
	LicenseMetadata                []Metadata                 `json:"licenseMetadata"`
	UserMetadata                   []Metadata                 `json:"userMetadata"`
	LicenseMeterAttributes         []LicenseMeterAttribute    `json:"licenseMeterAttributes"`
	ActivationMeterAttributes      []ActivationMeterAttribute `json:"activationMeterAttributes"`

	valid bool
}

// Valid reports whether the payload reflects a verified token that has not
// been invalidated since.
func (p *ActivationPayload) Valid() bool {
	return p != nil && p.valid
}

// activationRequest is the body of POST /activations and PATCH /activations/{id}.
type activationRequest struct {
	Fingerprint     string                     `json:"fingerprint"`
	ProductID       string                     `json:"productId"`
	Key             string                     `json:"key"`
	OS              string                     `json:"os"`
	OSVersion       string                     `json:"osVersion"`
	UserHash        string                     `json:"userHash"`
	AppVersion      string                     `json:"appVersion"`
	ClientVersion   string                     `json:"clientVersion"`
	VMName          string                     `json:"vmName"`
	Hostname        string                     `json:"hostname"`
	Email           string                     `json:"email"`
	Password        string                     `json:"password"`
	Metadata        []Metadata                 `json:"metadata"`
	MeterAttributes []ActivationMeterAttribute `json:"meterAttributes"`
}

// activationResponse is returned by the activation endpoints and stored in
// offline response files.
type activationResponse struct {
	ActivationToken string `json:"activationToken"`
}

// Release describes a published product release.
type Release struct {
	Version string        `json:"version"`
	Files   []ReleaseFile `json:"files"`
}

// ReleaseFile is one downloadable artifact of a Release.
type ReleaseFile struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url"`
}
