package service_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"partialdump/internal/config"
	"partialdump/internal/dbclient"
	"partialdump/internal/domain"
	"partialdump/internal/dump"
	"partialdump/internal/patch"
	"partialdump/internal/service"
	"partialdump/internal/storage"
)

const clinicSchema = `
CREATE TABLE owner (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT);
CREATE TABLE pet (id INTEGER PRIMARY KEY, name TEXT NOT NULL, owner_id INTEGER REFERENCES owner(id));
CREATE TABLE visit (id INTEGER PRIMARY KEY, pet_id INTEGER REFERENCES pet(id), note TEXT);

INSERT INTO owner VALUES (1, 'ann', 'ann@corp.com'), (2, 'bob', 'bob@corp.com');
INSERT INTO pet VALUES (10, 'rex', 1), (11, 'tom', 2);
INSERT INTO visit VALUES (100, 10, 'checkup'), (101, 11, 'vaccine'), (102, 10, 'follow-up');
`

// newClinic writes a populated SQLite file and returns a config dumping from it.
func newClinic(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clinic.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(clinicSchema)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	return &config.Config{
		Source: domain.DatabaseConnection{
			Driver:         domain.DatabaseDriverSQLite,
			Host:           path,
			MaxConnections: 4,
		},
		BatchSize: dump.DefaultBatchSize,
		Output:    "-",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestDumpService_Run(t *testing.T) {
	cfg := newClinic(t)
	cfg.Queries = []string{"SELECT * FROM visit WHERE id = 100"}
	cfg.FKRelations = true
	cfg.PostRequisites = []string{`SELECT * FROM visit WHERE pet_id IN ({{*pet.id}})`}
	cfg.Patches = []patch.Spec{{
		Table: "owner",
		Set:   []patch.SetSpec{{Column: "email", Value: "owner{{.id}}@example.com"}},
	}}
	cfg.PostDumpQueries = []string{"UPDATE sqlite_sequence SET seq = 1000;;", "  "}

	emitter := &service.MockEmitter{}
	var out bytes.Buffer
	snap, err := service.NewDumpService(cfg, "clinic", service.WithEmitter(emitter), service.WithLogger(discardLogger())).
		Run(context.Background(), &out, "-")
	require.NoError(t, err)

	assert.Equal(t, `INSERT INTO "owner" ("id", "name", "email") VALUES (1, 'ann', 'owner1@example.com');
INSERT INTO "pet" ("id", "name", "owner_id") VALUES (10, 'rex', 1);
INSERT INTO "visit" ("id", "pet_id", "note") VALUES (102, 10, 'follow-up');
INSERT INTO "visit" ("id", "pet_id", "note") VALUES (100, 10, 'checkup');
UPDATE sqlite_sequence SET seq = 1000;
`, out.String())
	assert.EqualValues(t, 4, snap.Emitted)

	names := emitter.Names()
	require.NotEmpty(t, names)
	assert.Equal(t, service.EventDumpStarted, names[0])
	assert.Equal(t, service.EventDumpFinished, names[len(names)-1])
}

func TestDumpService_SchemaMapQualifiesTables(t *testing.T) {
	cfg := newClinic(t)
	cfg.Queries = []string{"SELECT * FROM main.owner WHERE id = 2"}
	cfg.SchemaMap = []string{"main:archive"}

	var out bytes.Buffer
	_, err := service.NewDumpService(cfg, "", service.WithLogger(discardLogger())).Run(context.Background(), &out, "-")
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "archive"."owner" ("id", "name", "email") VALUES (2, 'bob', 'bob@corp.com');`+"\n", out.String())
}

func TestDumpService_RecordsHistory(t *testing.T) {
	cfg := newClinic(t)
	cfg.Queries = []string{"SELECT * FROM owner"}

	db, err := storage.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer db.Close()
	store := storage.NewRunStore(db)

	var out bytes.Buffer
	_, err = service.NewDumpService(cfg, "owners.yaml",
		service.WithRunStore(store), service.WithLogger(discardLogger())).Run(context.Background(), &out, "owners.sql")
	require.NoError(t, err)

	cfg.Queries = []string{"SELECT * FROM missing_table"}
	_, err = service.NewDumpService(cfg, "owners.yaml",
		service.WithRunStore(store), service.WithLogger(discardLogger())).Run(context.Background(), &out, "owners.sql")
	require.Error(t, err)

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	var statuses []domain.RunStatus
	for _, r := range runs {
		statuses = append(statuses, r.Status)
		assert.Equal(t, "owners.yaml", r.Job)
		assert.Equal(t, "owners.sql", r.Output)
	}
	assert.ElementsMatch(t, []domain.RunStatus{domain.RunStatusSuccess, domain.RunStatusError}, statuses)
}

func TestDumpService_QueryFailure(t *testing.T) {
	cfg := newClinic(t)
	cfg.Queries = []string{"SELECT * FROM owner WHERE id = 1", "SELECT * FROM nope"}

	emitter := &service.MockEmitter{}
	var out bytes.Buffer
	_, err := service.NewDumpService(cfg, "", service.WithEmitter(emitter), service.WithLogger(discardLogger())).
		Run(context.Background(), &out, "-")

	var qe *dump.QueryExecutionError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "SELECT * FROM nope", qe.Query)
	assert.Contains(t, out.String(), `VALUES (1, 'ann', 'ann@corp.com');`, "statements emitted before the failure are kept")

	names := emitter.Names()
	assert.Equal(t, service.EventDumpFailed, names[len(names)-1])
}

func TestDumpService_PatchFailure(t *testing.T) {
	cfg := newClinic(t)
	cfg.Queries = []string{"SELECT * FROM owner"}
	cfg.Patches = []patch.Spec{{
		Table:  "owner",
		Rename: []patch.RenameSpec{{From: "name", To: "email"}},
	}}

	_, err := service.NewDumpService(cfg, "", service.WithLogger(discardLogger())).
		Run(context.Background(), &bytes.Buffer{}, "-")
	var pe *dump.PatchError
	assert.ErrorAs(t, err, &pe)
}

func TestDumpService_ConnectFailure(t *testing.T) {
	cfg := newClinic(t)
	cfg.Queries = []string{"SELECT * FROM owner"}
	refused := errors.New("connection refused")

	_, err := service.NewDumpService(cfg, "",
		service.WithLogger(discardLogger()),
		service.WithConnector(func(context.Context, *domain.DatabaseConnection, *slog.Logger) (dbclient.Connector, error) {
			return nil, refused
		}),
	).Run(context.Background(), &bytes.Buffer{}, "-")

	assert.True(t, service.IsConnectError(err))
	assert.ErrorIs(t, err, refused)
}

func TestDumpService_InvalidConfigConnectsNothing(t *testing.T) {
	cfg := newClinic(t)
	connected := false

	_, err := service.NewDumpService(cfg, "",
		service.WithLogger(discardLogger()),
		service.WithConnector(func(context.Context, *domain.DatabaseConnection, *slog.Logger) (dbclient.Connector, error) {
			connected = true
			return nil, errors.New("unreachable")
		}),
	).Run(context.Background(), &bytes.Buffer{}, "-")

	assert.ErrorIs(t, err, config.ErrNoQueries)
	assert.False(t, connected)
}

func TestDumpService_PasswordSecret(t *testing.T) {
	t.Setenv("PARTIALDUMP_TEST_SOURCE_PASSWORD", "pw-from-env")
	cfg := newClinic(t)
	cfg.Queries = []string{"SELECT * FROM owner"}
	cfg.Source.PasswordSecret = "env:PARTIALDUMP_TEST_SOURCE_PASSWORD"
	var seen string

	_, err := service.NewDumpService(cfg, "",
		service.WithLogger(discardLogger()),
		service.WithConnector(func(_ context.Context, conn *domain.DatabaseConnection, _ *slog.Logger) (dbclient.Connector, error) {
			seen = conn.Password
			return nil, errors.New("stop")
		}),
	).Run(context.Background(), &bytes.Buffer{}, "-")

	assert.True(t, service.IsConnectError(err))
	assert.Equal(t, "pw-from-env", seen)
}
