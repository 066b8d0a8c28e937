package graph

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/agentic-research/mastercopy/api"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL,
	name TEXT NOT NULL,
	kind INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	size INTEGER DEFAULT 0,
	mtime INTEGER NOT NULL,
	template TEXT,
	source TEXT,
	content BLOB
);
CREATE INDEX IF NOT EXISTS idx_parent_seq ON nodes(parent_id, seq);
CREATE INDEX IF NOT EXISTS idx_template ON nodes(template);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	software INTEGER NOT NULL,
	tree TEXT,
	library TEXT,
	started INTEGER NOT NULL,
	finished INTEGER,
	status TEXT NOT NULL,
	folders INTEGER DEFAULT 0,
	instantiated INTEGER DEFAULT 0,
	missing INTEGER DEFAULT 0,
	error TEXT
);
`

// SQLiteStore is a project file. Every write is committed on its own so a
// failed materialization leaves the objects created before the failure.
type SQLiteStore struct {
	db       *sql.DB
	mu       sync.Mutex
	seq      int64
	stmtNode *sql.Stmt
}

// CreateSQLiteStore creates a new project file. It refuses to overwrite an
// existing file.
func CreateSQLiteStore(path string) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("project %s already exists", path)
	}
	return openSQLite(path)
}

// OpenSQLiteStore opens an existing project file.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open project %s: %w", path, err)
	}
	return openSQLite(path)
}

func openSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	// journal_mode=DELETE: after each commit the .db file alone is the project.
	if _, err := db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM nodes").Scan(&s.seq); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read sequence: %w", err)
	}

	s.stmtNode, err = db.Prepare(`
		INSERT INTO nodes (id, parent_id, name, kind, seq, size, mtime, template, source, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return s, nil
}

// AddRoot implements Store.
func (s *SQLiteStore) AddRoot(n *Node) error {
	return s.insert(n, "")
}

// AddNode implements Store.
func (s *SQLiteStore) AddNode(n *Node) error {
	parentID := ParentID(n.ID)
	var kind int
	err := s.db.QueryRow("SELECT kind FROM nodes WHERE id = ?", parentID).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup parent %s: %w", parentID, err)
	}
	return s.insert(n, parentID)
}

func (s *SQLiteStore) insert(n *Node, parentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ModTime.IsZero() {
		n.ModTime = time.Now()
	}
	var template, source sql.NullString
	if n.Template != "" {
		template = sql.NullString{String: n.Template, Valid: true}
		source = sql.NullString{String: n.Source, Valid: true}
	}

	s.seq++
	_, err := s.stmtNode.Exec(
		n.ID,
		parentID,
		n.Name(),
		int(n.Kind),
		s.seq,
		n.ContentSize(),
		n.ModTime.UnixNano(),
		template,
		source,
		n.Data,
	)
	if err != nil {
		s.seq--
		return fmt.Errorf("insert node %s: %w", n.ID, err)
	}
	return nil
}

// GetNode implements Graph.
func (s *SQLiteStore) GetNode(id string) (*Node, error) {
	id = strings.TrimPrefix(id, "/")

	var kind int
	var mtimeNano int64
	var template, source sql.NullString
	var content []byte
	err := s.db.QueryRow(
		"SELECT kind, mtime, template, source, content FROM nodes WHERE id = ?", id,
	).Scan(&kind, &mtimeNano, &template, &source, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	node := &Node{
		ID:       id,
		Kind:     api.Kind(kind),
		ModTime:  time.Unix(0, mtimeNano),
		Data:     content,
		Template: template.String,
		Source:   source.String,
	}
	if node.IsFolder() {
		node.Children, err = s.ListChildren(id)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

// ListChildren implements Graph.
func (s *SQLiteStore) ListChildren(id string) ([]string, error) {
	id = strings.TrimPrefix(id, "/")
	return s.queryIDs("SELECT id FROM nodes WHERE parent_id = ? ORDER BY seq", id)
}

// ReadContent implements Graph.
func (s *SQLiteStore) ReadContent(id string, buf []byte, offset int64) (int, error) {
	id = strings.TrimPrefix(id, "/")
	var content []byte
	err := s.db.QueryRow("SELECT content FROM nodes WHERE id = ?", id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return copyAt(content, buf, offset), nil
}

// Instances implements Graph.
func (s *SQLiteStore) Instances(template string) ([]string, error) {
	return s.queryIDs("SELECT id FROM nodes WHERE template = ? ORDER BY seq", template)
}

func (s *SQLiteStore) queryIDs(query string, arg any) ([]string, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.stmtNode != nil {
		_ = s.stmtNode.Close()
	}
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
