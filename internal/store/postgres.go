package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetops/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies *.sql files from dir in lexical order (dev helper).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		b, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("migrate %s: %w", n, err)
		}
	}
	return nil
}

// normalizeErr maps driver errors onto the store taxonomy. Unique and
// foreign-key violations come back as pgconn.PgError codes.
func normalizeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrConflict
		case "23503":
			return ErrInvalidReference
		}
	}
	return err
}

// cond accumulates WHERE clauses with positional args.
type cond struct {
	clauses []string
	args    []any
}

func (c *cond) add(expr string, v any) {
	c.args = append(c.args, v)
	c.clauses = append(c.clauses, fmt.Sprintf(expr, len(c.args)))
}

func (c *cond) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func (c *cond) paging(f model.Filter) string {
	if f.Limit <= 0 {
		return ""
	}
	c.args = append(c.args, f.Limit)
	limit := len(c.args)
	c.args = append(c.args, f.Offset())
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", limit, len(c.args))
}

func likeParam(s string) string { return "%" + strings.ToLower(s) + "%" }

// Users

func (p *Postgres) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, role, company_id, password_hash, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Email, u.Name, u.Role, nullIfEmpty(u.CompanyID), u.PasswordHash, u.CreatedAt)
	if err != nil {
		return model.User{}, normalizeErr(err)
	}
	return u, nil
}

func (p *Postgres) scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var company sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &company, &u.PasswordHash, &u.CreatedAt); err != nil {
		return model.User{}, normalizeErr(err)
	}
	u.CompanyID = company.String
	return u, nil
}

func (p *Postgres) GetUser(ctx context.Context, id string) (model.User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx,
		`SELECT id::text, email, name, role, company_id::text, password_hash, created_at FROM users WHERE id=$1`, id))
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx,
		`SELECT id::text, email, name, role, company_id::text, password_hash, created_at FROM users WHERE email=$1`,
		strings.ToLower(email)))
}

// Companies

func (p *Postgres) CreateCompany(ctx context.Context, c model.Company) (model.Company, error) {
	c.ID = uuid.New().String()
	if c.Status == "" {
		c.Status = "active"
	}
	c.CreatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, email, phone, status, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.Name, nullIfEmpty(c.Email), nullIfEmpty(c.Phone), c.Status, c.CreatedAt)
	if err != nil {
		return model.Company{}, normalizeErr(err)
	}
	return c, nil
}

func (p *Postgres) GetCompany(ctx context.Context, id string) (model.Company, error) {
	var c model.Company
	var email, phone sql.NullString
	row := p.db.QueryRowContext(ctx,
		`SELECT id::text, name, email, phone, status, created_at FROM companies WHERE id=$1`, id)
	if err := row.Scan(&c.ID, &c.Name, &email, &phone, &c.Status, &c.CreatedAt); err != nil {
		return model.Company{}, normalizeErr(err)
	}
	c.Email, c.Phone = email.String, phone.String
	return c, nil
}

func companyConds(f model.Filter) *cond {
	c := &cond{}
	if f.Status != "" {
		c.add("status=$%d", f.Status)
	}
	if f.Search != "" {
		c.add("(lower(name) LIKE $%d OR lower(coalesce(email,'')) LIKE $%[1]d)", likeParam(f.Search))
	}
	return c
}

func (p *Postgres) ListCompanies(ctx context.Context, f model.Filter) ([]model.Company, int, error) {
	total, err := p.CountCompanies(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	c := companyConds(f)
	q := `SELECT id::text, name, email, phone, status, created_at FROM companies` + c.where() + ` ORDER BY created_at` + c.paging(f)
	rows, err := p.db.QueryContext(ctx, q, c.args...)
	if err != nil {
		return nil, 0, normalizeErr(err)
	}
	defer rows.Close()
	out := []model.Company{}
	for rows.Next() {
		var e model.Company
		var email, phone sql.NullString
		if err := rows.Scan(&e.ID, &e.Name, &email, &phone, &e.Status, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Email, e.Phone = email.String, phone.String
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (p *Postgres) CountCompanies(ctx context.Context, f model.Filter) (int, error) {
	c := companyConds(f)
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM companies`+c.where(), c.args...).Scan(&n)
	return n, normalizeErr(err)
}

func (p *Postgres) UpdateCompany(ctx context.Context, c model.Company) (model.Company, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE companies SET name=$1, email=$2, phone=$3, status=coalesce(nullif($4,''), status) WHERE id=$5`,
		c.Name, nullIfEmpty(c.Email), nullIfEmpty(c.Phone), c.Status, c.ID)
	if err != nil {
		return model.Company{}, normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Company{}, ErrNotFound
	}
	return p.GetCompany(ctx, c.ID)
}

func (p *Postgres) DeleteCompany(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM companies WHERE id=$1`, id)
	if err != nil {
		return normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ToggleCompanyStatus(ctx context.Context, id string) (model.Company, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE companies SET status = CASE WHEN status='active' THEN 'inactive' ELSE 'active' END WHERE id=$1`, id)
	if err != nil {
		return model.Company{}, normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Company{}, ErrNotFound
	}
	return p.GetCompany(ctx, id)
}

// Drivers

func (p *Postgres) CreateDriver(ctx context.Context, d model.Driver) (model.Driver, error) {
	d.ID = uuid.New().String()
	if d.Status == "" {
		d.Status = "active"
	}
	d.CreatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO drivers (id, user_id, name, license, phone, company, status, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.ID, nullIfEmpty(d.UserID), d.Name, nullIfEmpty(d.License), nullIfEmpty(d.Phone), d.Company, d.Status, d.CreatedAt)
	if err != nil {
		return model.Driver{}, normalizeErr(err)
	}
	return d, nil
}

func (p *Postgres) GetDriver(ctx context.Context, id string) (model.Driver, error) {
	var d model.Driver
	var userID, license, phone sql.NullString
	row := p.db.QueryRowContext(ctx,
		`SELECT id::text, user_id::text, name, license, phone, company, status, created_at FROM drivers WHERE id=$1`, id)
	if err := row.Scan(&d.ID, &userID, &d.Name, &license, &phone, &d.Company, &d.Status, &d.CreatedAt); err != nil {
		return model.Driver{}, normalizeErr(err)
	}
	d.UserID, d.License, d.Phone = userID.String, license.String, phone.String
	return d, nil
}

// driverConds translates the company id filter through the companies table,
// since driver rows reference the company by name.
func driverConds(f model.Filter) *cond {
	c := &cond{}
	if f.CompanyID != "" {
		c.add("company IN (SELECT name FROM companies WHERE id=$%d)", f.CompanyID)
	}
	if f.Status != "" {
		c.add("status=$%d", f.Status)
	}
	if f.Search != "" {
		c.add("(lower(name) LIKE $%d OR lower(coalesce(license,'')) LIKE $%[1]d)", likeParam(f.Search))
	}
	return c
}

func (p *Postgres) ListDrivers(ctx context.Context, f model.Filter) ([]model.Driver, int, error) {
	total, err := p.CountDrivers(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	c := driverConds(f)
	q := `SELECT id::text, user_id::text, name, license, phone, company, status, created_at FROM drivers` + c.where() + ` ORDER BY created_at` + c.paging(f)
	rows, err := p.db.QueryContext(ctx, q, c.args...)
	if err != nil {
		return nil, 0, normalizeErr(err)
	}
	defer rows.Close()
	out := []model.Driver{}
	for rows.Next() {
		var d model.Driver
		var userID, license, phone sql.NullString
		if err := rows.Scan(&d.ID, &userID, &d.Name, &license, &phone, &d.Company, &d.Status, &d.CreatedAt); err != nil {
			return nil, 0, err
		}
		d.UserID, d.License, d.Phone = userID.String, license.String, phone.String
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (p *Postgres) CountDrivers(ctx context.Context, f model.Filter) (int, error) {
	c := driverConds(f)
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM drivers`+c.where(), c.args...).Scan(&n)
	return n, normalizeErr(err)
}

func (p *Postgres) UpdateDriver(ctx context.Context, d model.Driver) (model.Driver, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE drivers SET name=$1, license=$2, phone=$3, company=$4, status=coalesce(nullif($5,''), status) WHERE id=$6`,
		d.Name, nullIfEmpty(d.License), nullIfEmpty(d.Phone), d.Company, d.Status, d.ID)
	if err != nil {
		return model.Driver{}, normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Driver{}, ErrNotFound
	}
	return p.GetDriver(ctx, d.ID)
}

func (p *Postgres) DeleteDriver(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM drivers WHERE id=$1`, id)
	if err != nil {
		return normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Vehicles

func (p *Postgres) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	v.ID = uuid.New().String()
	if v.Status == "" {
		v.Status = "active"
	}
	v.CreatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO vehicles (id, plate, model, capacity, company_id, status, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		v.ID, v.Plate, nullIfEmpty(v.Model), v.Capacity, v.CompanyID, v.Status, v.CreatedAt)
	if err != nil {
		return model.Vehicle{}, normalizeErr(err)
	}
	return v, nil
}

func (p *Postgres) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	var v model.Vehicle
	var mdl sql.NullString
	row := p.db.QueryRowContext(ctx,
		`SELECT id::text, plate, model, capacity, company_id::text, status, created_at FROM vehicles WHERE id=$1`, id)
	if err := row.Scan(&v.ID, &v.Plate, &mdl, &v.Capacity, &v.CompanyID, &v.Status, &v.CreatedAt); err != nil {
		return model.Vehicle{}, normalizeErr(err)
	}
	v.Model = mdl.String
	return v, nil
}

func vehicleConds(f model.Filter) *cond {
	c := &cond{}
	if f.CompanyID != "" {
		c.add("company_id=$%d", f.CompanyID)
	}
	if f.Status != "" {
		c.add("status=$%d", f.Status)
	}
	if f.Search != "" {
		c.add("(lower(plate) LIKE $%d OR lower(coalesce(model,'')) LIKE $%[1]d)", likeParam(f.Search))
	}
	return c
}

func (p *Postgres) ListVehicles(ctx context.Context, f model.Filter) ([]model.Vehicle, int, error) {
	total, err := p.CountVehicles(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	c := vehicleConds(f)
	q := `SELECT id::text, plate, model, capacity, company_id::text, status, created_at FROM vehicles` + c.where() + ` ORDER BY created_at` + c.paging(f)
	rows, err := p.db.QueryContext(ctx, q, c.args...)
	if err != nil {
		return nil, 0, normalizeErr(err)
	}
	defer rows.Close()
	out := []model.Vehicle{}
	for rows.Next() {
		var v model.Vehicle
		var mdl sql.NullString
		if err := rows.Scan(&v.ID, &v.Plate, &mdl, &v.Capacity, &v.CompanyID, &v.Status, &v.CreatedAt); err != nil {
			return nil, 0, err
		}
		v.Model = mdl.String
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func (p *Postgres) CountVehicles(ctx context.Context, f model.Filter) (int, error) {
	c := vehicleConds(f)
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM vehicles`+c.where(), c.args...).Scan(&n)
	return n, normalizeErr(err)
}

func (p *Postgres) UpdateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE vehicles SET plate=$1, model=$2, capacity=$3, company_id=$4, status=coalesce(nullif($5,''), status) WHERE id=$6`,
		v.Plate, nullIfEmpty(v.Model), v.Capacity, v.CompanyID, v.Status, v.ID)
	if err != nil {
		return model.Vehicle{}, normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Vehicle{}, ErrNotFound
	}
	return p.GetVehicle(ctx, v.ID)
}

func (p *Postgres) DeleteVehicle(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM vehicles WHERE id=$1`, id)
	if err != nil {
		return normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Passengers

func (p *Postgres) CreatePassenger(ctx context.Context, ps model.Passenger) (model.Passenger, error) {
	ps.ID = uuid.New().String()
	if ps.Status == "" {
		ps.Status = "active"
	}
	ps.CreatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO passengers (id, user_id, name, phone, pickup_address, company_id, status, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		ps.ID, nullIfEmpty(ps.UserID), ps.Name, nullIfEmpty(ps.Phone), nullIfEmpty(ps.PickupAddress), ps.CompanyID, ps.Status, ps.CreatedAt)
	if err != nil {
		return model.Passenger{}, normalizeErr(err)
	}
	return ps, nil
}

func (p *Postgres) GetPassenger(ctx context.Context, id string) (model.Passenger, error) {
	var ps model.Passenger
	var userID, phone, pickup sql.NullString
	row := p.db.QueryRowContext(ctx,
		`SELECT id::text, user_id::text, name, phone, pickup_address, company_id::text, status, created_at FROM passengers WHERE id=$1`, id)
	if err := row.Scan(&ps.ID, &userID, &ps.Name, &phone, &pickup, &ps.CompanyID, &ps.Status, &ps.CreatedAt); err != nil {
		return model.Passenger{}, normalizeErr(err)
	}
	ps.UserID, ps.Phone, ps.PickupAddress = userID.String, phone.String, pickup.String
	return ps, nil
}

func passengerConds(f model.Filter) *cond {
	c := &cond{}
	if f.CompanyID != "" {
		c.add("company_id=$%d", f.CompanyID)
	}
	if f.UserID != "" {
		c.add("user_id=$%d", f.UserID)
	}
	if f.Status != "" {
		c.add("status=$%d", f.Status)
	}
	if f.Search != "" {
		c.add("(lower(name) LIKE $%d OR lower(coalesce(pickup_address,'')) LIKE $%[1]d)", likeParam(f.Search))
	}
	return c
}

func (p *Postgres) ListPassengers(ctx context.Context, f model.Filter) ([]model.Passenger, int, error) {
	total, err := p.CountPassengers(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	c := passengerConds(f)
	q := `SELECT id::text, user_id::text, name, phone, pickup_address, company_id::text, status, created_at FROM passengers` + c.where() + ` ORDER BY created_at` + c.paging(f)
	rows, err := p.db.QueryContext(ctx, q, c.args...)
	if err != nil {
		return nil, 0, normalizeErr(err)
	}
	defer rows.Close()
	out := []model.Passenger{}
	for rows.Next() {
		var ps model.Passenger
		var userID, phone, pickup sql.NullString
		if err := rows.Scan(&ps.ID, &userID, &ps.Name, &phone, &pickup, &ps.CompanyID, &ps.Status, &ps.CreatedAt); err != nil {
			return nil, 0, err
		}
		ps.UserID, ps.Phone, ps.PickupAddress = userID.String, phone.String, pickup.String
		out = append(out, ps)
	}
	return out, total, rows.Err()
}

func (p *Postgres) CountPassengers(ctx context.Context, f model.Filter) (int, error) {
	c := passengerConds(f)
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM passengers`+c.where(), c.args...).Scan(&n)
	return n, normalizeErr(err)
}

func (p *Postgres) UpdatePassenger(ctx context.Context, ps model.Passenger) (model.Passenger, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE passengers SET name=$1, phone=$2, pickup_address=$3, company_id=$4, status=coalesce(nullif($5,''), status) WHERE id=$6`,
		ps.Name, nullIfEmpty(ps.Phone), nullIfEmpty(ps.PickupAddress), ps.CompanyID, ps.Status, ps.ID)
	if err != nil {
		return model.Passenger{}, normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Passenger{}, ErrNotFound
	}
	return p.GetPassenger(ctx, ps.ID)
}

func (p *Postgres) DeletePassenger(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM passengers WHERE id=$1`, id)
	if err != nil {
		return normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Routes

func (p *Postgres) CreateRoute(ctx context.Context, r model.RouteRecord) (model.RouteRecord, error) {
	r.ID = uuid.New().String()
	r.Status = model.RouteScheduled
	r.CreatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO routes (id, name, company_id, driver_id, vehicle_id, origin, destination, status, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ID, r.Name, r.CompanyID, nullIfEmpty(r.DriverID), nullIfEmpty(r.VehicleID),
		nullIfEmpty(r.Origin), nullIfEmpty(r.Destination), r.Status, r.CreatedAt)
	if err != nil {
		return model.RouteRecord{}, normalizeErr(err)
	}
	return r, nil
}

func (p *Postgres) scanRoute(row *sql.Row) (model.RouteRecord, error) {
	var r model.RouteRecord
	var driverID, vehicleID, origin, dest sql.NullString
	var started, finished sql.NullTime
	if err := row.Scan(&r.ID, &r.Name, &r.CompanyID, &driverID, &vehicleID, &origin, &dest, &r.Status, &started, &finished, &r.CreatedAt); err != nil {
		return model.RouteRecord{}, normalizeErr(err)
	}
	r.DriverID, r.VehicleID, r.Origin, r.Destination = driverID.String, vehicleID.String, origin.String, dest.String
	if started.Valid {
		t := started.Time
		r.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

const routeCols = `id::text, name, company_id::text, driver_id::text, vehicle_id::text, origin, destination, status, started_at, finished_at, created_at`

func (p *Postgres) GetRoute(ctx context.Context, id string) (model.RouteRecord, error) {
	return p.scanRoute(p.db.QueryRowContext(ctx, `SELECT `+routeCols+` FROM routes WHERE id=$1`, id))
}

func routeConds(f model.Filter) *cond {
	c := &cond{}
	if f.CompanyID != "" {
		c.add("company_id=$%d", f.CompanyID)
	}
	if f.DriverID != "" {
		c.add("driver_id=$%d", f.DriverID)
	}
	if f.VehicleID != "" {
		c.add("vehicle_id=$%d", f.VehicleID)
	}
	if f.Status != "" {
		c.add("status=$%d", f.Status)
	}
	if f.Search != "" {
		c.add("(lower(name) LIKE $%d OR lower(coalesce(origin,'')) LIKE $%[1]d OR lower(coalesce(destination,'')) LIKE $%[1]d)", likeParam(f.Search))
	}
	return c
}

func (p *Postgres) ListRoutes(ctx context.Context, f model.Filter) ([]model.RouteRecord, int, error) {
	total, err := p.CountRoutes(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	c := routeConds(f)
	q := `SELECT ` + routeCols + ` FROM routes` + c.where() + ` ORDER BY created_at` + c.paging(f)
	rows, err := p.db.QueryContext(ctx, q, c.args...)
	if err != nil {
		return nil, 0, normalizeErr(err)
	}
	defer rows.Close()
	out := []model.RouteRecord{}
	for rows.Next() {
		var r model.RouteRecord
		var driverID, vehicleID, origin, dest sql.NullString
		var started, finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Name, &r.CompanyID, &driverID, &vehicleID, &origin, &dest, &r.Status, &started, &finished, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		r.DriverID, r.VehicleID, r.Origin, r.Destination = driverID.String, vehicleID.String, origin.String, dest.String
		if started.Valid {
			t := started.Time
			r.StartedAt = &t
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func (p *Postgres) CountRoutes(ctx context.Context, f model.Filter) (int, error) {
	c := routeConds(f)
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM routes`+c.where(), c.args...).Scan(&n)
	return n, normalizeErr(err)
}

func (p *Postgres) UpdateRoute(ctx context.Context, r model.RouteRecord) (model.RouteRecord, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE routes SET name=$1, company_id=$2, driver_id=$3, vehicle_id=$4, origin=$5, destination=$6 WHERE id=$7`,
		r.Name, r.CompanyID, nullIfEmpty(r.DriverID), nullIfEmpty(r.VehicleID),
		nullIfEmpty(r.Origin), nullIfEmpty(r.Destination), r.ID)
	if err != nil {
		return model.RouteRecord{}, normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.RouteRecord{}, ErrNotFound
	}
	return p.GetRoute(ctx, r.ID)
}

func (p *Postgres) DeleteRoute(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM routes WHERE id=$1`, id)
	if err != nil {
		return normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// transitionRoute flips the status only when the current status matches
// exactly; zero rows affected on an existing route means a bad transition.
func (p *Postgres) transitionRoute(ctx context.Context, id, from, to, tsCol string, ts time.Time) (model.RouteRecord, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE routes SET status=$1, `+tsCol+`=$2 WHERE id=$3 AND status=$4`, to, ts.UTC(), id, from)
	if err != nil {
		return model.RouteRecord{}, normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := p.GetRoute(ctx, id); err != nil {
			return model.RouteRecord{}, err
		}
		return model.RouteRecord{}, ErrInvalidTransition
	}
	return p.GetRoute(ctx, id)
}

func (p *Postgres) StartRoute(ctx context.Context, id string, ts time.Time) (model.RouteRecord, error) {
	return p.transitionRoute(ctx, id, model.RouteScheduled, model.RouteInProgress, "started_at", ts)
}

func (p *Postgres) FinishRoute(ctx context.Context, id string, ts time.Time) (model.RouteRecord, error) {
	return p.transitionRoute(ctx, id, model.RouteInProgress, model.RouteFinished, "finished_at", ts)
}

// Alerts

func (p *Postgres) CreateAlert(ctx context.Context, a model.Alert) (model.Alert, error) {
	a.ID = uuid.New().String()
	if a.Status == "" {
		a.Status = model.AlertUnread
	}
	a.CreatedAt = time.Now().UTC()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO alerts (id, user_id, company_id, type, priority, message, status, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, nullIfEmpty(a.UserID), nullIfEmpty(a.CompanyID), a.Type, nullIfEmpty(a.Priority), a.Message, a.Status, a.CreatedAt)
	if err != nil {
		return model.Alert{}, normalizeErr(err)
	}
	return a, nil
}

func (p *Postgres) scanAlert(row *sql.Row) (model.Alert, error) {
	var a model.Alert
	var userID, companyID, priority sql.NullString
	if err := row.Scan(&a.ID, &userID, &companyID, &a.Type, &priority, &a.Message, &a.Status, &a.CreatedAt); err != nil {
		return model.Alert{}, normalizeErr(err)
	}
	a.UserID, a.CompanyID, a.Priority = userID.String, companyID.String, priority.String
	return a, nil
}

const alertCols = `id::text, user_id::text, company_id::text, type, priority, message, status, created_at`

func (p *Postgres) GetAlert(ctx context.Context, id string) (model.Alert, error) {
	return p.scanAlert(p.db.QueryRowContext(ctx, `SELECT `+alertCols+` FROM alerts WHERE id=$1`, id))
}

func alertConds(f model.Filter) *cond {
	c := &cond{}
	if f.UserID != "" {
		c.add("user_id=$%d", f.UserID)
	}
	if f.CompanyID != "" {
		c.add("company_id=$%d", f.CompanyID)
	}
	if f.Type != "" {
		c.add("type=$%d", f.Type)
	}
	if f.Priority != "" {
		c.add("priority=$%d", f.Priority)
	}
	if f.Status != "" {
		c.add("status=$%d", f.Status)
	}
	if f.Search != "" {
		c.add("lower(message) LIKE $%d", likeParam(f.Search))
	}
	return c
}

func (p *Postgres) ListAlerts(ctx context.Context, f model.Filter) ([]model.Alert, int, error) {
	total, err := p.CountAlerts(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	c := alertConds(f)
	q := `SELECT ` + alertCols + ` FROM alerts` + c.where() + ` ORDER BY created_at` + c.paging(f)
	rows, err := p.db.QueryContext(ctx, q, c.args...)
	if err != nil {
		return nil, 0, normalizeErr(err)
	}
	defer rows.Close()
	out := []model.Alert{}
	for rows.Next() {
		var a model.Alert
		var userID, companyID, priority sql.NullString
		if err := rows.Scan(&a.ID, &userID, &companyID, &a.Type, &priority, &a.Message, &a.Status, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		a.UserID, a.CompanyID, a.Priority = userID.String, companyID.String, priority.String
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (p *Postgres) CountAlerts(ctx context.Context, f model.Filter) (int, error) {
	c := alertConds(f)
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM alerts`+c.where(), c.args...).Scan(&n)
	return n, normalizeErr(err)
}

func (p *Postgres) DeleteAlert(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM alerts WHERE id=$1`, id)
	if err != nil {
		return normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) MarkAlertRead(ctx context.Context, id string) (model.Alert, error) {
	// no-op when the alert is already read or resolved
	if _, err := p.db.ExecContext(ctx, `UPDATE alerts SET status=$1 WHERE id=$2 AND status=$3`,
		model.AlertRead, id, model.AlertUnread); err != nil {
		return model.Alert{}, normalizeErr(err)
	}
	return p.GetAlert(ctx, id)
}

func (p *Postgres) ResolveAlert(ctx context.Context, id string) (model.Alert, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE alerts SET status=$1 WHERE id=$2`, model.AlertResolved, id)
	if err != nil {
		return model.Alert{}, normalizeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Alert{}, ErrNotFound
	}
	return p.GetAlert(ctx, id)
}

// Helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
