package types

import (
	"encoding/json"
	"time"
)

// ApprovalStatus is the lifecycle status of an ApprovalRequest.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalRequest is a blocking multi-approver gate. Once Status
// leaves "pending" the Approvals/Rejections lists are frozen (spec §3).
type ApprovalRequest struct {
	ID          string `json:"id"`
	RequestorID string `json:"requestor_id"`
	ActionType  string `json:"action_type"`
	Description string `json:"description"`

	RequiredRoles        []string `json:"required_roles,omitempty"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	MinApprovals         int      `json:"min_approvals"`

	Approvals   []string `json:"approvals"`
	Rejections  []string `json:"rejections"`

	Status    ApprovalStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at,omitempty"`
}

// IsTerminal reports whether the request can no longer be mutated.
func (r *ApprovalRequest) IsTerminal() bool {
	return r.Status != ApprovalPending
}

// MarshalRecord serializes the request to its KV hash representation.
func (r *ApprovalRequest) MarshalRecord() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalApprovalRequest deserializes a request previously written
// by MarshalRecord.
func UnmarshalApprovalRequest(data []byte) (*ApprovalRequest, error) {
	var r ApprovalRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Clone returns a copy safe for return to callers.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	clone := *r
	clone.RequiredRoles = append([]string(nil), r.RequiredRoles...)
	clone.RequiredCapabilities = append([]string(nil), r.RequiredCapabilities...)
	clone.Approvals = append([]string(nil), r.Approvals...)
	clone.Rejections = append([]string(nil), r.Rejections...)
	return &clone
}
