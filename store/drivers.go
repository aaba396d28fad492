package store

import "time"

type Driver struct {
	ID        int64
	Code      string
	Name      string
	Phone     string
	Vehicle   string
	Active    bool
	CreatedAt time.Time
}

func (db *DB) CreateDriver(d *Driver) error {
	query := db.Q(`INSERT INTO drivers (code, name, phone, vehicle, active) VALUES (?, ?, ?, ?, ?)`)
	if db.driver == "postgres" {
		query += " RETURNING id"
		return db.QueryRow(query, d.Code, d.Name, d.Phone, d.Vehicle, d.Active).Scan(&d.ID)
	}
	res, err := db.Exec(query, d.Code, d.Name, d.Phone, d.Vehicle, d.Active)
	if err != nil {
		return err
	}
	d.ID, err = res.LastInsertId()
	return err
}

const driverCols = `id, code, name, phone, vehicle, active, created_at`

func (db *DB) scanDriver(row interface{ Scan(...any) error }) (*Driver, error) {
	var d Driver
	var createdAt any
	if err := row.Scan(&d.ID, &d.Code, &d.Name, &d.Phone, &d.Vehicle, &d.Active, &createdAt); err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

func (db *DB) GetDriver(id int64) (*Driver, error) {
	return db.scanDriver(db.QueryRow(db.Q(`SELECT `+driverCols+` FROM drivers WHERE id=?`), id))
}

func (db *DB) GetDriverByCode(code string) (*Driver, error) {
	return db.scanDriver(db.QueryRow(db.Q(`SELECT `+driverCols+` FROM drivers WHERE code=?`), code))
}

func (db *DB) ListDrivers() ([]*Driver, error) {
	rows, err := db.Query(`SELECT ` + driverCols + ` FROM drivers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Driver
	for rows.Next() {
		d, err := db.scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (db *DB) UpdateDriver(d *Driver) error {
	_, err := db.Exec(db.Q(`UPDATE drivers SET name=?, phone=?, vehicle=?, active=? WHERE id=?`),
		d.Name, d.Phone, d.Vehicle, d.Active, d.ID)
	return err
}
