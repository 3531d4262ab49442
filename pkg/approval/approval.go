package approval

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/agentcoord/core/pkg/audit"
	"github.com/agentcoord/core/pkg/coreerr"
	"github.com/agentcoord/core/pkg/kv"
	"github.com/agentcoord/core/pkg/types"
	"github.com/rs/zerolog"
)

const pendingIndexKey = "approvals:pending"

func recordKey(id string) string { return "approval:" + id }

// Manager is the Approval Workflow (spec §4.F).
type Manager struct {
	backend kv.Backend
	audit   *audit.Log
	logger  zerolog.Logger
}

// New creates a Manager over backend.
func New(backend kv.Backend, log *audit.Log) *Manager {
	return &Manager{
		backend: backend,
		audit:   log,
		logger:  corelog.WithComponent("approval"),
	}
}

// CreateRequest is the input to Create. MinApprovals defaults to 1
// when zero.
type CreateRequest struct {
	RequestorID          string
	ActionType           string
	Description          string
	RequiredRoles        []string
	RequiredCapabilities []string
	MinApprovals         int
	TimeoutSeconds       int // 0 means no expiry
}

// Create opens a new pending approval request.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*types.ApprovalRequest, error) {
	minApprovals := req.MinApprovals
	if minApprovals == 0 {
		minApprovals = 1
	}

	id, err := newID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	approval := &types.ApprovalRequest{
		ID:                   id,
		RequestorID:          req.RequestorID,
		ActionType:           req.ActionType,
		Description:          req.Description,
		RequiredRoles:        req.RequiredRoles,
		RequiredCapabilities: req.RequiredCapabilities,
		MinApprovals:         minApprovals,
		Approvals:            []string{},
		Rejections:           []string{},
		Status:               types.ApprovalPending,
		CreatedAt:            now,
	}
	if req.TimeoutSeconds > 0 {
		approval.ExpiresAt = now.Add(time.Duration(req.TimeoutSeconds) * time.Second)
	}

	if err := m.put(ctx, approval); err != nil {
		return nil, err
	}
	if err := m.backend.SAdd(ctx, pendingIndexKey, id); err != nil {
		return nil, err
	}

	m.logger.Info().Str("approval_id", id).Str("action_type", req.ActionType).Msg("approval requested")
	return approval.Clone(), nil
}

// Approve records approverID's approval. eligible must already
// reflect the caller's own role/capability policy check (spec §4.F);
// the core itself does not evaluate roles. Self-approval is permitted
// by default — forbidding it is a higher-layer policy decision.
func (m *Manager) Approve(ctx context.Context, approvalID, approverID string, eligible bool) (*types.ApprovalRequest, error) {
	if !eligible {
		return nil, coreerr.ErrPermissionDenied
	}
	return m.decide(ctx, approvalID, approverID, true)
}

// Reject records approverID's rejection, same eligibility contract as
// Approve.
func (m *Manager) Reject(ctx context.Context, approvalID, approverID string, eligible bool) (*types.ApprovalRequest, error) {
	if !eligible {
		return nil, coreerr.ErrPermissionDenied
	}
	return m.decide(ctx, approvalID, approverID, false)
}

func (m *Manager) decide(ctx context.Context, approvalID, approverID string, approve bool) (*types.ApprovalRequest, error) {
	req, err := m.get(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, coreerr.ErrUnknownApproval
	}
	if req.IsTerminal() {
		return nil, coreerr.Wrap(coreerr.IllegalStateTransition, "approval already decided", coreerr.ErrIllegalStateTransition)
	}

	if approve {
		req.Approvals = append(req.Approvals, approverID)
	} else {
		req.Rejections = append(req.Rejections, approverID)
	}

	kind := types.AuditApproval
	switch {
	case len(req.Rejections) > 0:
		req.Status = types.ApprovalRejected
	case len(req.Approvals) >= req.MinApprovals:
		req.Status = types.ApprovalApproved
	}

	if err := m.put(ctx, req); err != nil {
		return nil, err
	}
	if req.IsTerminal() {
		if err := m.backend.SRem(ctx, pendingIndexKey, approvalID); err != nil {
			return nil, err
		}
		if err := m.backend.Publish(ctx, channelKey(approvalID), []byte(string(req.Status))); err != nil {
			return nil, err
		}
	}

	if m.audit != nil {
		_, _ = m.audit.Append(ctx, kind, approverID, approvalID, string(req.Status))
	}
	return req.Clone(), nil
}

// WaitForDecision blocks until approvalID reaches a terminal status
// or timeout elapses, polling at pollInterval (spec §4.F). On
// timeout, the request transitions to expired before returning.
func (m *Manager) WaitForDecision(ctx context.Context, approvalID string, pollInterval, timeout time.Duration) (types.ApprovalStatus, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		req, err := m.get(ctx, approvalID)
		if err != nil {
			return "", err
		}
		if req == nil {
			return "", coreerr.ErrUnknownApproval
		}
		if req.IsTerminal() {
			return req.Status, nil
		}
		if !req.ExpiresAt.IsZero() && time.Now().UTC().After(req.ExpiresAt) {
			return m.expire(ctx, req)
		}
		if timeout > 0 && time.Now().After(deadline) {
			return m.expire(ctx, req)
		}

		select {
		case <-ctx.Done():
			return "", coreerr.Wrap(coreerr.Timeout, "wait_for_decision canceled", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Manager) expire(ctx context.Context, req *types.ApprovalRequest) (types.ApprovalStatus, error) {
	req.Status = types.ApprovalExpired
	if err := m.put(ctx, req); err != nil {
		return "", err
	}
	if err := m.backend.SRem(ctx, pendingIndexKey, req.ID); err != nil {
		return "", err
	}
	return types.ApprovalExpired, nil
}

// ListPending returns every approval still awaiting a decision.
func (m *Manager) ListPending(ctx context.Context) ([]*types.ApprovalRequest, error) {
	ids, err := m.backend.SMembers(ctx, pendingIndexKey)
	if err != nil {
		return nil, err
	}

	out := make([]*types.ApprovalRequest, 0, len(ids))
	for _, id := range ids {
		req, err := m.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if req == nil {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func (m *Manager) put(ctx context.Context, req *types.ApprovalRequest) error {
	data, err := req.MarshalRecord()
	if err != nil {
		return err
	}
	return m.backend.Set(ctx, recordKey(req.ID), data)
}

func (m *Manager) get(ctx context.Context, id string) (*types.ApprovalRequest, error) {
	data, ok, err := m.backend.Get(ctx, recordKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return types.UnmarshalApprovalRequest(data)
}

func channelKey(approvalID string) string { return "channel:approval:" + approvalID }

func newID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
