package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ops-reports/internal/platform/database"
	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
)

// DirectoryRepository answers organization and position lookups for people.
// Membership is derived from the position a person currently holds.
type DirectoryRepository struct {
	db database.Querier
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(db database.Querier) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// OrganizationOf returns the organization of the position personID holds,
// or nil when the person holds no position.
func (r *DirectoryRepository) OrganizationOf(ctx context.Context, personID string) (*Organization, error) {
	query := `
		SELECT o.id, o.name
		FROM positions p
		JOIN organizations o ON o.id = p.organization_id
		WHERE p.person_id = $1
	`

	org := &Organization{}
	err := r.db.QueryRow(ctx, query, personID).Scan(&org.ID, &org.Name)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get organization for person")
	}
	return org, nil
}

// PositionOf returns the position personID currently holds, or nil.
func (r *DirectoryRepository) PositionOf(ctx context.Context, personID string) (*Position, error) {
	query := `
		SELECT id, name, organization_id, person_id
		FROM positions
		WHERE person_id = $1
	`

	pos := &Position{}
	err := r.db.QueryRow(ctx, query, personID).Scan(&pos.ID, &pos.Name, &pos.OrganizationID, &pos.PersonID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get position for person")
	}
	return pos, nil
}

// PeopleInPositions returns the people currently holding any of the given
// positions. Empty positions are skipped.
func (r *DirectoryRepository) PeopleInPositions(ctx context.Context, positionIDs []string) ([]Person, error) {
	if len(positionIDs) == 0 {
		return []Person{}, nil
	}

	query := `
		SELECT pe.id, pe.name, pe.email, p.id
		FROM positions p
		JOIN people pe ON pe.id = p.person_id
		WHERE p.id = ANY($1)
		ORDER BY pe.name ASC
	`

	rows, err := r.db.Query(ctx, query, positionIDs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get people in positions")
	}
	defer rows.Close()

	people := make([]Person, 0)
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.PositionID); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan person")
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get people in positions")
	}
	return people, nil
}

// GetPerson retrieves a person by id.
func (r *DirectoryRepository) GetPerson(ctx context.Context, id string) (*Person, error) {
	query := `
		SELECT pe.id, pe.name, pe.email, COALESCE(p.id, '')
		FROM people pe
		LEFT JOIN positions p ON p.person_id = pe.id
		WHERE pe.id = $1
	`

	person := &Person{}
	err := r.db.QueryRow(ctx, query, id).Scan(&person.ID, &person.Name, &person.Email, &person.PositionID)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("person", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get person")
	}
	return person, nil
}
