package persistence

import (
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/sentinel/internal/testutil"
)

type PostgresStoreTestSuite struct {
	suite.Suite
	endpoint string
	store    *SQLStore
	db       *sql.DB
}

func TestPostgresStoreTestSuite(t *testing.T) {
	testsuite := new(PostgresStoreTestSuite)
	testsuite.endpoint = testutil.GetPostgresEndpoint(t)
	initTestPostgresStore(t, testsuite)
	suite.Run(t, testsuite)
}

func (p *PostgresStoreTestSuite) SetupTest() {
	_, err := p.db.Exec("TRUNCATE TABLE events, contracts, queue_stats RESTART IDENTITY")
	p.NoErrorf(err, "TRUNCATE failed: %v", err)
}

func initTestPostgresStore(t *testing.T, ts *PostgresStoreTestSuite) {
	t.Helper()

	db, err := sql.Open("pgx", ts.endpoint)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := db.Ping(); err != nil {
		t.Fatalf("postgres ping failed: %v", err)
	}
	ts.db = db

	store, err := NewPostgresStore(db)
	if err != nil {
		t.Fatalf("NewPostgresStore failed: %v", err)
	}
	ts.store = store
}

func (p *PostgresStoreTestSuite) TestEvents() {
	testEventStore(p.T(), p.store)
}

func (p *PostgresStoreTestSuite) TestConcurrentAppend() {
	testConcurrentAppend(p.T(), p.store)
}

func (p *PostgresStoreTestSuite) TestCursors() {
	testCursorStore(p.T(), p.store)
}

func (p *PostgresStoreTestSuite) TestContracts() {
	testContractStore(p.T(), p.store)
}
