package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
)

var ErrUnknownDriver = errors.New("leads: unsupported sql driver")

// notes is nullable in the table but never nil on a Lead
const leadColumns = `id, name, email, phone, source, status, date, COALESCE(notes, '') AS notes`

const (
	leadsInsert = `INSERT INTO leads (name, email, phone, source, status, date, notes)
VALUES
(:name, :email, :phone, :source, :status, :date, '') RETURNING ` + leadColumns

	leadsGetByID = `SELECT ` + leadColumns + ` FROM leads WHERE id = :id`

	leadsSearch = `SELECT ` + leadColumns + ` FROM leads%s ORDER BY id DESC`

	leadsUpdate = `UPDATE leads SET %s WHERE id = :id RETURNING ` + leadColumns

	leadsDelete = `DELETE FROM leads WHERE id = :id`
)

var schemas = map[string]string{
	"postgres": `CREATE TABLE IF NOT EXISTS leads (
	id     BIGSERIAL PRIMARY KEY,
	name   TEXT NOT NULL,
	email  TEXT NOT NULL,
	phone  TEXT NOT NULL,
	source TEXT NOT NULL,
	status TEXT NOT NULL,
	date   TEXT NOT NULL,
	notes  TEXT
)`,
	// AUTOINCREMENT so sqlite never hands out the id of a deleted row again
	"sqlite3": `CREATE TABLE IF NOT EXISTS leads (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	name   TEXT NOT NULL,
	email  TEXT NOT NULL,
	phone  TEXT NOT NULL,
	source TEXT NOT NULL,
	status TEXT NOT NULL,
	date   TEXT NOT NULL,
	notes  TEXT
)`,
}

// Migrate creates the leads table if it isn't there yet
func Migrate(ctx context.Context, db *sqlx.DB) error {
	schema, ok := schemas[db.DriverName()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDriver, db.DriverName())
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("leads: migrate: %w", err)
	}
	return nil
}

// dbStorage keeps leads in the `leads` table. Works against postgres and sqlite
type dbStorage struct {
	db  *sqlx.DB
	log *logger
}

func newDBStorage(db *sqlx.DB, l *logger) (*dbStorage, error) {
	if _, ok := schemas[db.DriverName()]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, db.DriverName())
	}

	// use the json tag instead of the DB tag
	db.Mapper = reflectx.NewMapperFunc("json", strings.ToLower)

	return &dbStorage{
		db:  db,
		log: l.WithField("storage", db.DriverName()),
	}, nil
}

func (s *dbStorage) GetAll(ctx context.Context) ([]*Lead, error) {
	return s.Search(ctx, Filter{})
}

func (s *dbStorage) Search(ctx context.Context, f Filter) ([]*Lead, error) {
	where, args := f.where()
	query := fmt.Sprintf(leadsSearch, where)

	s.log.debug(ctx, "search: %s %+v", query, args)
	return s.queryAll(ctx, s.db, query, args)
}

func (s *dbStorage) Get(ctx context.Context, id int64) (*Lead, bool, error) {
	return s.queryOne(ctx, s.db, leadsGetByID, map[string]interface{}{"id": id})
}

func (s *dbStorage) Create(ctx context.Context, in Input) (*Lead, error) {
	l, ok, err := s.queryOne(ctx, s.db, leadsInsert, in)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("leads: insert did not return a row")
	}

	s.log.debug(ctx, "created lead %d", l.ID)
	return l, nil
}

func (s *dbStorage) Update(ctx context.Context, id int64, p Patch) (*Lead, bool, error) {
	if p.IsEmpty() {
		return s.Get(ctx, id)
	}

	set, args := p.set()
	args["id"] = id

	l, ok, err := s.queryOne(ctx, s.db, fmt.Sprintf(leadsUpdate, set), args)
	if err != nil {
		return nil, false, err
	}

	s.log.debug(ctx, "updated lead %d: %v", id, ok)
	return l, ok, nil
}

func (s *dbStorage) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := sqlx.NamedExecContext(ctx, s.db, leadsDelete, map[string]interface{}{"id": id})
	if err != nil {
		return false, fmt.Errorf("leads: delete %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("leads: delete %d: %w", id, err)
	}

	s.log.debug(ctx, "deleted lead %d: %v", id, n > 0)
	return n > 0, nil
}

// queryOne runs a named query that returns at most one lead
func (s *dbStorage) queryOne(ctx context.Context, conn sqlx.ExtContext, query string, arg interface{}) (*Lead, bool, error) {
	res, err := s.queryAll(ctx, conn, query, arg)
	if err != nil {
		return nil, false, err
	}
	if len(res) == 0 {
		return nil, false, nil
	}
	return res[0], true, nil
}

func (s *dbStorage) queryAll(ctx context.Context, conn sqlx.ExtContext, query string, arg interface{}) ([]*Lead, error) {
	rows, err := sqlx.NamedQueryContext(ctx, conn, query, arg)
	if err != nil {
		return nil, fmt.Errorf("leads: query: %w", err)
	}
	// Let's make sure we don't have a memory leak!! :)
	defer rows.Close()

	res := []*Lead{}
	for rows.Next() {
		l := &Lead{}
		if err := rows.StructScan(l); err != nil {
			return nil, fmt.Errorf("leads: scan: %w", err)
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// where builds the WHERE clause (with a leading space) & the named args for f
func (f Filter) where() (string, map[string]interface{}) {
	clauses := []string{}
	args := map[string]interface{}{}

	if isSet(f.Status) {
		clauses = append(clauses, "LOWER(status) = LOWER(:status)")
		args["status"] = f.Status
	}
	if isSet(f.Source) {
		clauses = append(clauses, "LOWER(source) = LOWER(:source)")
		args["source"] = f.Source
	}
	if f.Email != "" {
		clauses = append(clauses, `LOWER(email) LIKE :email ESCAPE '\'`)
		args["email"] = "%" + escapeLike(strings.ToLower(f.Email)) + "%"
	}
	if f.Phone != "" {
		clauses = append(clauses, `phone LIKE :phone ESCAPE '\'`)
		args["phone"] = "%" + escapeLike(f.Phone) + "%"
	}
	if f.Date != "" {
		clauses = append(clauses, "date = :date")
		args["date"] = f.Date
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// set builds the SET clause & the named args for every non-nil field of p
func (p Patch) set() (string, map[string]interface{}) {
	clauses := []string{}
	args := map[string]interface{}{}

	add := func(column string, v *string) {
		if v == nil {
			return
		}
		clauses = append(clauses, fmt.Sprintf("%s = :%s", column, column))
		args[column] = *v
	}

	add("name", p.Name)
	add("email", p.Email)
	add("phone", p.Phone)
	add("source", p.Source)
	add("status", p.Status)
	add("date", p.Date)
	add("notes", p.Notes)

	return strings.Join(clauses, ", "), args
}
