// README: Membership store reading users, org memberships and saved locations from PostgreSQL.
package membership

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"parcel/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetUser(ctx context.Context, id types.ID) (*User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, role, name, email, is_active, email_verified, device_token
		FROM users
		WHERE id = $1`, string(id),
	)
	var u User
	err := row.Scan(&u.ID, &u.Role, &u.Name, &u.Email, &u.IsActive, &u.EmailVerified, &u.DeviceToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetMembership(ctx context.Context, userID, orgID types.ID) (*Membership, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, org_id, role, is_active, is_suspended, suspension_reason
		FROM org_memberships
		WHERE user_id = $1 AND org_id = $2`, string(userID), string(orgID),
	)
	var m Membership
	err := row.Scan(&m.UserID, &m.OrgID, &m.Role, &m.IsActive, &m.IsSuspended, &m.SuspensionReason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) SavedLocations(ctx context.Context, customerID types.ID) ([]SavedLocation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT label, precise
		FROM customer_locations
		WHERE customer_id = $1
		ORDER BY label`, string(customerID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SavedLocation
	for rows.Next() {
		var l SavedLocation
		if err := rows.Scan(&l.Label, &l.Precise); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
