package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lepinkainen/alexandria/internal/catalog"
)

// SQLiteStore implements the Store interface on a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLiteStore instance.
func NewSQLiteStore(dbPath string) *SQLiteStore {
	return &SQLiteStore{
		dbPath: dbPath,
	}
}

// Connect opens the database and creates the per-family tables if missing.
func (s *SQLiteStore) Connect() error {
	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	for _, family := range catalog.Families() {
		if _, err := db.Exec(tableSpecs[family].createSQL); err != nil {
			return fmt.Errorf("failed to create table for %s: %w", family, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// FreeSpace returns the free space on the volume holding the database file.
func (s *SQLiteStore) FreeSpace() (uint64, error) {
	return freeSpaceAt(filepath.Dir(s.dbPath))
}

// tableSpec binds one record family to its table layout.
type tableSpec struct {
	table     string
	stampCol  string
	createSQL string
}

var tableSpecs = map[catalog.Family]tableSpec{
	catalog.FamilyNonFiction: {
		table:    "nonfiction",
		stampCol: "last_modified",
		createSQL: `CREATE TABLE IF NOT EXISTS nonfiction (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_id INTEGER NOT NULL,
			title TEXT,
			authors TEXT,
			series TEXT,
			publisher TEXT,
			year TEXT,
			language TEXT,
			format TEXT,
			md5 TEXT,
			filesize INTEGER,
			last_modified TEXT NOT NULL
		)`,
	},
	catalog.FamilyFiction: {
		table:    "fiction",
		stampCol: "last_modified",
		createSQL: `CREATE TABLE IF NOT EXISTS fiction (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_id INTEGER NOT NULL,
			title TEXT,
			authors TEXT,
			series TEXT,
			language TEXT,
			format TEXT,
			md5 TEXT,
			filesize INTEGER,
			last_modified TEXT NOT NULL
		)`,
	},
	catalog.FamilyArticle: {
		table:    "articles",
		stampCol: "added_at",
		createSQL: `CREATE TABLE IF NOT EXISTS articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_id INTEGER NOT NULL,
			title TEXT,
			authors TEXT,
			doi TEXT,
			journal TEXT,
			language TEXT,
			format TEXT,
			md5 TEXT,
			filesize INTEGER,
			added_at TEXT NOT NULL
		)`,
	},
}

// row flattens a record into its column names and values, excluding the
// surrogate id column.
func row(obj catalog.Object) (spec tableSpec, columns []string, values []any, err error) {
	switch rec := obj.(type) {
	case *catalog.Book:
		spec = tableSpecs[catalog.FamilyNonFiction]
		columns = []string{"remote_id", "title", "authors", "series", "publisher", "year", "language", "format", "md5", "filesize", "last_modified"}
		values = []any{rec.RemoteID, rec.Title, rec.Authors, rec.Series, rec.Publisher, rec.Year, rec.Language, rec.Format, rec.MD5, rec.FileSize, rec.LastModified.Format(catalog.StampLayout)}
	case *catalog.FictionBook:
		spec = tableSpecs[catalog.FamilyFiction]
		columns = []string{"remote_id", "title", "authors", "series", "language", "format", "md5", "filesize", "last_modified"}
		values = []any{rec.RemoteID, rec.Title, rec.Authors, rec.Series, rec.Language, rec.Format, rec.MD5, rec.FileSize, rec.LastModified.Format(catalog.StampLayout)}
	case *catalog.Article:
		spec = tableSpecs[catalog.FamilyArticle]
		columns = []string{"remote_id", "title", "authors", "doi", "journal", "language", "format", "md5", "filesize", "added_at"}
		values = []any{rec.RemoteID, rec.Title, rec.Authors, rec.DOI, rec.Journal, rec.Language, rec.Format, rec.MD5, rec.FileSize, rec.AddedAt.Format(catalog.StampLayout)}
	default:
		err = fmt.Errorf("unsupported record type %T", obj)
	}
	return spec, columns, values, err
}

// Insert adds a new record.
func (s *SQLiteStore) Insert(ctx context.Context, obj catalog.Object) error {
	spec, columns, values, err := row(obj)
	if err != nil {
		return err
	}
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		spec.table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Update replaces the stored record with the same remote id.
func (s *SQLiteStore) Update(ctx context.Context, obj catalog.Object) error {
	spec, columns, values, err := row(obj)
	if err != nil {
		return err
	}
	assignments := make([]string, len(columns))
	for i, col := range columns {
		assignments[i] = col + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE remote_id = ?",
		spec.table, strings.Join(assignments, ", "))
	values = append(values, obj.Key())
	res, err := s.db.ExecContext(ctx, query, values...)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no stored record with remote id %d", obj.Key())
	}
	return nil
}

// ChangeStamp returns the stored change-detection value for a remote id.
func (s *SQLiteStore) ChangeStamp(ctx context.Context, family catalog.Family, remoteID int64) (time.Time, bool, error) {
	spec := tableSpecs[family]
	query := fmt.Sprintf("SELECT %s FROM %s WHERE remote_id = ?", spec.stampCol, spec.table)
	var raw string
	err := s.db.QueryRowContext(ctx, query, remoteID).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read change stamp: %w", err)
	}
	stamp, err := time.Parse(catalog.StampLayout, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("stored change stamp is malformed: %w", err)
	}
	return stamp, true, nil
}

// ScanRemoteIDs streams every stored remote id of the family to fn.
func (s *SQLiteStore) ScanRemoteIDs(ctx context.Context, family catalog.Family, fn func(int64) error) error {
	spec := tableSpecs[family]
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT remote_id FROM %s", spec.table))
	if err != nil {
		return fmt.Errorf("failed to scan remote ids: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan remote id: %w", err)
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of stored records of the family.
func (s *SQLiteStore) Count(ctx context.Context, family catalog.Family) (int64, error) {
	spec := tableSpecs[family]
	var count int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", spec.table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Latest returns the most recently modified record of the family, with the
// remote id as tie-breaker, or nil when the family is empty.
func (s *SQLiteStore) Latest(ctx context.Context, family catalog.Family) (catalog.Object, error) {
	spec := tableSpecs[family]
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s DESC, remote_id DESC LIMIT 1", spec.table, spec.stampCol)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest record: %w", err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, rows.Err()
	}
	obj, err := scanRecord(family, rows)
	if err != nil {
		return nil, err
	}
	return obj, rows.Err()
}

func scanRecord(family catalog.Family, rows *sql.Rows) (catalog.Object, error) {
	var stamp string
	var obj catalog.Object
	var err error
	switch family {
	case catalog.FamilyNonFiction:
		rec := &catalog.Book{}
		err = rows.Scan(&rec.ID, &rec.RemoteID, &rec.Title, &rec.Authors, &rec.Series,
			&rec.Publisher, &rec.Year, &rec.Language, &rec.Format, &rec.MD5, &rec.FileSize, &stamp)
		if err == nil {
			rec.LastModified, err = time.Parse(catalog.StampLayout, stamp)
		}
		obj = rec
	case catalog.FamilyFiction:
		rec := &catalog.FictionBook{}
		err = rows.Scan(&rec.ID, &rec.RemoteID, &rec.Title, &rec.Authors, &rec.Series,
			&rec.Language, &rec.Format, &rec.MD5, &rec.FileSize, &stamp)
		if err == nil {
			rec.LastModified, err = time.Parse(catalog.StampLayout, stamp)
		}
		obj = rec
	case catalog.FamilyArticle:
		rec := &catalog.Article{}
		err = rows.Scan(&rec.ID, &rec.RemoteID, &rec.Title, &rec.Authors, &rec.DOI,
			&rec.Journal, &rec.Language, &rec.Format, &rec.MD5, &rec.FileSize, &stamp)
		if err == nil {
			rec.AddedAt, err = time.Parse(catalog.StampLayout, stamp)
		}
		obj = rec
	default:
		return nil, fmt.Errorf("unsupported family %s", family)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	return obj, nil
}

// Indexes lists the supporting indexes on the family's table.
func (s *SQLiteStore) Indexes(ctx context.Context, family catalog.Family) ([]string, error) {
	spec := tableSpecs[family]
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ?", spec.table)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan index name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CreateIndex creates a supporting index on the given column if missing.
func (s *SQLiteStore) CreateIndex(ctx context.Context, family catalog.Family, column string) error {
	spec := tableSpecs[family]
	name := IndexName(family, column)
	query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, spec.table, column)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	return nil
}

// IndexName returns the canonical name of a supporting index.
func IndexName(family catalog.Family, column string) string {
	return fmt.Sprintf("idx_%s_%s", tableSpecs[family].table, column)
}

// StampColumn returns the change-detection column of the family's table.
func StampColumn(family catalog.Family) string {
	return tableSpecs[family].stampCol
}
