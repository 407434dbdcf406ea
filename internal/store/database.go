// Package store provides sqlite-backed persistence for LNS sessions, so
// a devsim run survives a process restart without re-Joining every
// device, mirroring internal/storage/database.go's Open/migrate pattern
// from the property controller.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agsys/lorasim/internal/lns"
	"github.com/agsys/lorasim/internal/region"
)

// DB wraps the SQLite database connection.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the SQLite database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: migrate database: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		dev_eui TEXT PRIMARY KEY,
		dev_addr INTEGER NOT NULL,
		nwk_key BLOB NOT NULL,
		nwk_skey BLOB NOT NULL,
		app_skey BLOB NOT NULL,
		fcnt_up INTEGER NOT NULL,
		fcnt_dn INTEGER NOT NULL,
		rx1_delay INTEGER NOT NULL,
		rx1_dr_off INTEGER NOT NULL,
		rx2_dr INTEGER NOT NULL,
		rx2_freq INTEGER NOT NULL,
		dev_nonce INTEGER NOT NULL,
		region TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_dev_addr ON sessions(dev_addr);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// regionByName resolves the region tables this simulator ships, per
// SPEC_FULL.md §10.4.
func regionByName(name string) (*region.Region, error) {
	switch name {
	case "EU868":
		return region.NewEU868(), nil
	case "US915":
		return region.NewUS915(), nil
	default:
		return nil, fmt.Errorf("store: unknown region %q", name)
	}
}

// SaveSession upserts s, replacing any prior row for the same DevEUI.
func (db *DB) SaveSession(s *lns.Session) error {
	query := `INSERT INTO sessions
		(dev_eui, dev_addr, nwk_key, nwk_skey, app_skey, fcnt_up, fcnt_dn,
		 rx1_delay, rx1_dr_off, rx2_dr, rx2_freq, dev_nonce, region, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(dev_eui) DO UPDATE SET
			dev_addr = excluded.dev_addr,
			nwk_key = excluded.nwk_key,
			nwk_skey = excluded.nwk_skey,
			app_skey = excluded.app_skey,
			fcnt_up = excluded.fcnt_up,
			fcnt_dn = excluded.fcnt_dn,
			rx1_delay = excluded.rx1_delay,
			rx1_dr_off = excluded.rx1_dr_off,
			rx2_dr = excluded.rx2_dr,
			rx2_freq = excluded.rx2_freq,
			dev_nonce = excluded.dev_nonce,
			region = excluded.region,
			updated_at = excluded.updated_at`

	regionName := ""
	if s.Region != nil {
		regionName = s.Region.Name
	}

	_, err := db.conn.Exec(query,
		hexEUI(s.DevEUI), s.DevAddr, s.NwkKey[:], s.NwkSKey[:], s.AppSKey[:],
		s.FCntUp, s.FCntDn, s.RX1Delay, s.RX1DROff, s.RX2DR, s.RX2Freq,
		s.DevNonce, regionName)
	return err
}

// LoadSessions returns every persisted session, for replay into a fresh
// *lns.SessionManager at startup.
func (db *DB) LoadSessions() ([]*lns.Session, error) {
	query := `SELECT dev_eui, dev_addr, nwk_key, nwk_skey, app_skey, fcnt_up, fcnt_dn,
		rx1_delay, rx1_dr_off, rx2_dr, rx2_freq, dev_nonce, region FROM sessions`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*lns.Session
	for rows.Next() {
		var euiHex, regionName string
		var nwkKey, nwkSKey, appSKey []byte
		s := &lns.Session{}
		if err := rows.Scan(&euiHex, &s.DevAddr, &nwkKey, &nwkSKey, &appSKey,
			&s.FCntUp, &s.FCntDn, &s.RX1Delay, &s.RX1DROff, &s.RX2DR, &s.RX2Freq,
			&s.DevNonce, &regionName); err != nil {
			return nil, err
		}

		eui, err := parseHexEUI(euiHex)
		if err != nil {
			return nil, err
		}
		s.DevEUI = eui
		copy(s.NwkKey[:], nwkKey)
		copy(s.NwkSKey[:], nwkSKey)
		copy(s.AppSKey[:], appSKey)

		reg, err := regionByName(regionName)
		if err != nil {
			return nil, err
		}
		s.Region = reg

		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteSession removes the persisted row for deveui, if any.
func (db *DB) DeleteSession(deveui [8]byte) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE dev_eui = ?", hexEUI(deveui))
	return err
}
