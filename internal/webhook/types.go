package webhook

// GitHub webhook request headers.
const (
	EventHeader     = "X-GitHub-Event"
	SignatureHeader = "X-Hub-Signature-256"
	DeliveryHeader  = "X-GitHub-Delivery"
)

// MaxPayloadBytes caps webhook request bodies. 256 KiB is enough for every
// valid create event payload.
const MaxPayloadBytes = 256 * 1024

// RefType is the type of Git ref object a create event reports.
type RefType string

const (
	RefBranch RefType = "branch"
	RefTag    RefType = "tag"
)

// User is the partial user model from GitHub webhook payloads.
type User struct {
	Login string `json:"login"`
}

// Repository is the partial repository model from GitHub webhook payloads.
type Repository struct {
	Name  string `json:"name"`
	Owner User   `json:"owner"`
}

// RefCreationEvent is the payload of a GitHub "create" webhook event.
// Fields the service does not use are ignored during decoding.
type RefCreationEvent struct {
	// Ref is the name of the created ref, e.g. "main".
	Ref string `json:"ref"`

	// RefType says whether a branch or a tag was created.
	RefType RefType `json:"ref_type"`

	// MasterBranch is the name of the repository's default branch.
	MasterBranch string `json:"master_branch"`

	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}

// InfoResponse acknowledges successfully handled webhook events.
type InfoResponse struct {
	Info string `json:"info"`
}

// ErrorResponse informs callers about failed webhook requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
