package store

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/margrave/gatehouse/internal/approval"
)

const (
	approvalPrefix       = "gatehouse:approval:"
	approvalPendingIndex = "gatehouse:approvals:pending"
)

// SaveApproval persists an approval request and keeps the pending index in
// step with its status.
func (r *Redis) SaveApproval(ctx context.Context, req *approval.Request) error {
	if err := r.setJSON(ctx, approvalPrefix+req.ID, req); err != nil {
		return err
	}
	var err error
	if req.Status == approval.StatusPending {
		err = r.rdb.SAdd(ctx, approvalPendingIndex, req.ID).Err()
	} else {
		err = r.rdb.SRem(ctx, approvalPendingIndex, req.ID).Err()
	}
	if err != nil {
		return &UnavailableError{Op: "index approval", Err: err}
	}
	return nil
}

// GetApproval loads one approval request.
func (r *Redis) GetApproval(ctx context.Context, id string) (*approval.Request, error) {
	var req approval.Request
	if err := r.getJSON(ctx, approvalPrefix+id, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// PendingApprovals returns every request still in the pending index. Used
// by the gate to rehydrate after a restart.
func (r *Redis) PendingApprovals(ctx context.Context) ([]*approval.Request, error) {
	ids, err := r.rdb.SMembers(ctx, approvalPendingIndex).Result()
	if err != nil {
		return nil, &UnavailableError{Op: "list pending approvals", Err: err}
	}
	out := make([]*approval.Request, 0, len(ids))
	for _, id := range ids {
		req, err := r.GetApproval(ctx, id)
		if errors.Is(err, ErrNotFound) {
			r.logger.Warn("approval indexed but missing", zap.String("id", id))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}
