package service

import (
	"context"
	"fmt"
	"time"

	"snackorder/internal/apperror"
	"snackorder/internal/model"
	"snackorder/internal/repository"
	"snackorder/pkg/pagination"

	"github.com/google/uuid"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type AuditQuery struct {
	Action  string
	OrderID string
	Page    int
	Limit   int
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, identity model.Identity, q AuditQuery) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
}

func NewAuditService(auditRepo repository.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

// GetAuditLogs lists the order history of the caller's company, newest first.
func (s *auditService) GetAuditLogs(ctx context.Context, identity model.Identity, q AuditQuery) ([]AuditLogResponse, int64, error) {
	if !identity.IsAdmin() {
		return nil, 0, apperror.Forbidden("only admins can read the audit log")
	}
	if q.OrderID != "" {
		if _, err := uuid.Parse(q.OrderID); err != nil {
			return nil, 0, apperror.InvalidInput("order_id must be a UUID")
		}
	}
	p := pagination.Normalize(q.Page, q.Limit)
	filter := repository.AuditFilter{CompanyID: identity.CompanyID, Action: q.Action, EntityID: q.OrderID}
	logs, total, err := s.auditRepo.List(ctx, filter, p.Page, p.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		userID := "system"
		if l.UserID != nil {
			userID = l.UserID.String()
		}
		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return res, total, nil
}
