package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"dealership_backend/internal/model"
)

var operatorRoles = []string{string(model.RoleStaff), string(model.RoleManager), string(model.RoleAdmin)}

// principalRepository reads the users table as a principal directory.
type principalRepository struct {
	db *sqlx.DB
}

// NewPrincipalRepository creates a new principal directory
func NewPrincipalRepository(db *sqlx.DB) PrincipalRepository {
	return &principalRepository{db: db}
}

// GetRoles returns roles for the active principals among ids. Unknown ids are absent.
func (r *principalRepository) GetRoles(ctx context.Context, ids []int64) (map[int64]model.Role, error) {
	roles := make(map[int64]model.Role, len(ids))
	if len(ids) == 0 {
		return roles, nil
	}

	query := `
		SELECT id, role
		FROM users
		WHERE id = ANY($1) AND is_active = true
	`
	var rows []model.Principal
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("get principal roles: %w", err)
	}
	for _, p := range rows {
		roles[p.ID] = p.Role
	}
	return roles, nil
}

// ListActiveCustomerIDs returns every active end-user id.
func (r *principalRepository) ListActiveCustomerIDs(ctx context.Context) ([]int64, error) {
	query := `
		SELECT id FROM users
		WHERE is_active = true AND role <> ALL($1)
		ORDER BY id
	`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(operatorRoles)); err != nil {
		return nil, fmt.Errorf("list active customers: %w", err)
	}
	return ids, nil
}

// ListOperatorIDs returns every active operator-class principal id.
func (r *principalRepository) ListOperatorIDs(ctx context.Context) ([]int64, error) {
	query := `
		SELECT id FROM users
		WHERE is_active = true AND role = ANY($1)
		ORDER BY id
	`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(operatorRoles)); err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	return ids, nil
}
