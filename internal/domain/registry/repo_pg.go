package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclinic/intake/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a pgx-backed Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. The identity resolver relies on this to classify races on the
// person token column.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const personCols = `id, token, patient, gender, birth_date, birthdate_estimated,
	dead, death_date, cause_of_death_token, creator, created_at`

func (r *repoPG) FindByToken(ctx context.Context, token string) (*Person, error) {
	if token == "" {
		return nil, nil
	}

	var p Person
	var tok *string
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+personCols+` FROM person WHERE token = $1`, token)
	err := row.Scan(&p.ID, &tok, &p.Patient, &p.Gender, &p.BirthDate, &p.BirthdateEstimated,
		&p.Dead, &p.DeathDate, &p.CauseOfDeathToken, &p.Creator, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find person by token: %w", err)
	}
	if tok != nil {
		p.Token = *tok
	}

	if err := r.loadCollections(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) loadCollections(ctx context.Context, p *Person) error {
	q := r.conn(ctx)

	rows, err := q.Query(ctx, `SELECT id, given, middle, family, preferred, voided, creator, created_at
		FROM person_name WHERE person_id = $1 ORDER BY created_at, id`, p.ID)
	if err != nil {
		return fmt.Errorf("load names: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n Name
		if err := rows.Scan(&n.ID, &n.Given, &n.Middle, &n.Family, &n.Preferred, &n.Voided, &n.Creator, &n.CreatedAt); err != nil {
			return fmt.Errorf("scan name: %w", err)
		}
		p.Names = append(p.Names, n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate names: %w", err)
	}

	rows, err = q.Query(ctx, `SELECT id, type_token, value, preferred, voided, creator, created_at
		FROM patient_identifier WHERE person_id = $1 ORDER BY created_at, id`, p.ID)
	if err != nil {
		return fmt.Errorf("load identifiers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ident Identifier
		if err := rows.Scan(&ident.ID, &ident.TypeToken, &ident.Value, &ident.Preferred, &ident.Voided, &ident.Creator, &ident.CreatedAt); err != nil {
			return fmt.Errorf("scan identifier: %w", err)
		}
		p.Identifiers = append(p.Identifiers, ident)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate identifiers: %w", err)
	}

	rows, err = q.Query(ctx, `SELECT id, address1, address2, city_village, state_province, country,
		postal_code, county_district, latitude, longitude, preferred, voided, creator, created_at
		FROM person_address WHERE person_id = $1 ORDER BY created_at, id`, p.ID)
	if err != nil {
		return fmt.Errorf("load addresses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.Address1, &a.Address2, &a.CityVillage, &a.StateProvince, &a.Country,
			&a.PostalCode, &a.CountyDistrict, &a.Latitude, &a.Longitude, &a.Preferred, &a.Voided, &a.Creator, &a.CreatedAt); err != nil {
			return fmt.Errorf("scan address: %w", err)
		}
		p.Addresses = append(p.Addresses, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate addresses: %w", err)
	}

	rows, err = q.Query(ctx, `SELECT id, type_token, value, voided, creator, created_at
		FROM person_attribute WHERE person_id = $1 ORDER BY created_at, id`, p.ID)
	if err != nil {
		return fmt.Errorf("load attributes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var at Attribute
		if err := rows.Scan(&at.ID, &at.TypeToken, &at.Value, &at.Voided, &at.Creator, &at.CreatedAt); err != nil {
			return fmt.Errorf("scan attribute: %w", err)
		}
		p.Attributes = append(p.Attributes, at)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate attributes: %w", err)
	}

	return nil
}

func (r *repoPG) Save(ctx context.Context, p *Person) (*Person, error) {
	q := r.conn(ctx)

	var token *string
	if p.Token != "" {
		token = &p.Token
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
		_, err := q.Exec(ctx, `INSERT INTO person
			(id, token, patient, gender, birth_date, birthdate_estimated, dead, death_date, cause_of_death_token, creator)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			p.ID, token, p.Patient, p.Gender, p.BirthDate, p.BirthdateEstimated,
			p.Dead, p.DeathDate, p.CauseOfDeathToken, p.Creator)
		if err != nil {
			return nil, fmt.Errorf("insert person: %w", err)
		}
	} else {
		_, err := q.Exec(ctx, `UPDATE person SET token=$2, patient=$3, gender=$4, birth_date=$5,
			birthdate_estimated=$6, dead=$7, death_date=$8, cause_of_death_token=$9
			WHERE id = $1`,
			p.ID, token, p.Patient, p.Gender, p.BirthDate, p.BirthdateEstimated,
			p.Dead, p.DeathDate, p.CauseOfDeathToken)
		if err != nil {
			return nil, fmt.Errorf("update person: %w", err)
		}
	}

	if err := r.saveCollections(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repoPG) saveCollections(ctx context.Context, p *Person) error {
	q := r.conn(ctx)

	for i := range p.Names {
		n := &p.Names[i]
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
			_, err := q.Exec(ctx, `INSERT INTO person_name (id, person_id, given, middle, family, preferred, voided, creator)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				n.ID, p.ID, n.Given, n.Middle, n.Family, n.Preferred, n.Voided, n.Creator)
			if err != nil {
				return fmt.Errorf("insert name: %w", err)
			}
		} else {
			_, err := q.Exec(ctx, `UPDATE person_name SET preferred=$2, voided=$3 WHERE id = $1`,
				n.ID, n.Preferred, n.Voided)
			if err != nil {
				return fmt.Errorf("update name: %w", err)
			}
		}
	}

	for i := range p.Identifiers {
		ident := &p.Identifiers[i]
		if ident.ID == uuid.Nil {
			ident.ID = uuid.New()
			_, err := q.Exec(ctx, `INSERT INTO patient_identifier (id, person_id, type_token, value, preferred, voided, creator)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				ident.ID, p.ID, ident.TypeToken, ident.Value, ident.Preferred, ident.Voided, ident.Creator)
			if err != nil {
				return fmt.Errorf("insert identifier: %w", err)
			}
		} else {
			_, err := q.Exec(ctx, `UPDATE patient_identifier SET preferred=$2, voided=$3 WHERE id = $1`,
				ident.ID, ident.Preferred, ident.Voided)
			if err != nil {
				return fmt.Errorf("update identifier: %w", err)
			}
		}
	}

	for i := range p.Addresses {
		a := &p.Addresses[i]
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
			_, err := q.Exec(ctx, `INSERT INTO person_address
				(id, person_id, address1, address2, city_village, state_province, country,
				 postal_code, county_district, latitude, longitude, preferred, voided, creator)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
				a.ID, p.ID, a.Address1, a.Address2, a.CityVillage, a.StateProvince, a.Country,
				a.PostalCode, a.CountyDistrict, a.Latitude, a.Longitude, a.Preferred, a.Voided, a.Creator)
			if err != nil {
				return fmt.Errorf("insert address: %w", err)
			}
		} else {
			_, err := q.Exec(ctx, `UPDATE person_address SET preferred=$2, voided=$3 WHERE id = $1`,
				a.ID, a.Preferred, a.Voided)
			if err != nil {
				return fmt.Errorf("update address: %w", err)
			}
		}
	}

	for i := range p.Attributes {
		at := &p.Attributes[i]
		if at.ID != uuid.Nil {
			// attribute instances are append-only, never updated
			continue
		}
		at.ID = uuid.New()
		_, err := q.Exec(ctx, `INSERT INTO person_attribute (id, person_id, type_token, value, voided, creator)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			at.ID, p.ID, at.TypeToken, at.Value, at.Voided, at.Creator)
		if err != nil {
			return fmt.Errorf("insert attribute: %w", err)
		}
	}

	return nil
}

func (r *repoPG) CreateRelationship(ctx context.Context, typeToken string, personA, personB uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `INSERT INTO relationship (id, type_token, person_a, person_b)
		VALUES ($1,$2,$3,$4)`,
		uuid.New(), typeToken, personA, personB)
	if err != nil {
		return fmt.Errorf("create relationship: %w", err)
	}
	return nil
}

func (r *repoPG) RelationshipsOf(ctx context.Context, personID uuid.UUID) ([]Relationship, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, type_token, person_a, person_b, creator, created_at
		FROM relationship WHERE person_a = $1 OR person_b = $1 ORDER BY created_at, id`, personID)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var rels []Relationship
	for rows.Next() {
		var rel Relationship
		if err := rows.Scan(&rel.ID, &rel.TypeToken, &rel.PersonA, &rel.PersonB, &rel.Creator, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relationships: %w", err)
	}
	return rels, nil
}

func (r *repoPG) typeExists(ctx context.Context, table, typeToken string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE token = $1)`, table), typeToken).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return exists, nil
}

func (r *repoPG) IdentifierTypeExists(ctx context.Context, typeToken string) (bool, error) {
	return r.typeExists(ctx, "identifier_type", typeToken)
}

func (r *repoPG) AttributeTypeExists(ctx context.Context, typeToken string) (bool, error) {
	return r.typeExists(ctx, "attribute_type", typeToken)
}

func (r *repoPG) RelationshipTypeExists(ctx context.Context, typeToken string) (bool, error) {
	return r.typeExists(ctx, "relationship_type", typeToken)
}

type settingsRepoPG struct{ pool *pgxpool.Pool }

// NewSettingsRepoPG returns a pgx-backed SettingsRepository.
func NewSettingsRepoPG(pool *pgxpool.Pool) SettingsRepository {
	return &settingsRepoPG{pool: pool}
}

func (r *settingsRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const initialEncounterTypesKey = "initial_encounter_types"

func (r *settingsRepoPG) InitialEncounterTypes(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT value FROM registry_setting
		WHERE key = $1 ORDER BY position`, initialEncounterTypesKey)
	if err != nil {
		return nil, fmt.Errorf("query initial encounter types: %w", err)
	}
	defer rows.Close()

	// callers expect an empty list, not nil semantics that read as "unset"
	types := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan encounter type: %w", err)
		}
		types = append(types, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate encounter types: %w", err)
	}
	return types, nil
}

func (r *settingsRepoPG) SetInitialEncounterTypes(ctx context.Context, typeTokens []string) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM registry_setting WHERE key = $1`, initialEncounterTypesKey); err != nil {
		return fmt.Errorf("clear initial encounter types: %w", err)
	}
	for i, tok := range typeTokens {
		if _, err := q.Exec(ctx, `INSERT INTO registry_setting (key, position, value) VALUES ($1,$2,$3)`,
			initialEncounterTypesKey, i, tok); err != nil {
			return fmt.Errorf("insert encounter type %q: %w", tok, err)
		}
	}
	return nil
}
