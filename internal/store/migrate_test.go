// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package store

import (
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorhub/mentorhub/pkg/errutil"
)

// fakeMigrate implements migrateIface for testing.
type fakeMigrate struct {
	upErr          error
	downErr        error
	stepsErr       error
	versionVal     uint
	versionErr     error
	dirty          bool
	forceErr       error
	forced         []int
	closeSourceErr error
	closeDbErr     error
}

func (m *fakeMigrate) Up() error                    { return m.upErr }
func (m *fakeMigrate) Down() error                  { return m.downErr }
func (m *fakeMigrate) Steps(int) error              { return m.stepsErr }
func (m *fakeMigrate) Version() (uint, bool, error) { return m.versionVal, m.dirty, m.versionErr }
func (m *fakeMigrate) Force(v int) error {
	m.forced = append(m.forced, v)
	return m.forceErr
}
func (m *fakeMigrate) Close() (error, error) { return m.closeSourceErr, m.closeDbErr }

func TestNewMigrator_InvalidURL(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/testdb")
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@db:5432/app?sslmode=disable", "pgx5://u:p@db:5432/app?sslmode=disable"},
		{"postgresql://db/app", "pgx5://db/app"},
		{"pgx5://db/app", "pgx5://db/app"},
		{"mysql://db/app", "mysql://db/app"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, migrateURL(tt.in))
		})
	}
}

func TestMigrator_Run(t *testing.T) {
	boom := errors.New("database locked")

	tests := []struct {
		name     string
		fake     *fakeMigrate
		run      func(m *Migrator) error
		wantCode string
	}{
		{"up", &fakeMigrate{}, (*Migrator).Up, ""},
		{"up with nothing to do", &fakeMigrate{upErr: migrate.ErrNoChange}, (*Migrator).Up, ""},
		{"up failure", &fakeMigrate{upErr: boom}, (*Migrator).Up, "MIGRATION_UP_FAILED"},
		{"down", &fakeMigrate{}, (*Migrator).Down, ""},
		{"down with nothing to do", &fakeMigrate{downErr: migrate.ErrNoChange}, (*Migrator).Down, ""},
		{"down failure", &fakeMigrate{downErr: boom}, (*Migrator).Down, "MIGRATION_DOWN_FAILED"},
		{"steps", &fakeMigrate{}, func(m *Migrator) error { return m.Steps(-1) }, ""},
		{"steps with nothing to do", &fakeMigrate{stepsErr: migrate.ErrNoChange}, func(m *Migrator) error { return m.Steps(1) }, ""},
		{"steps failure", &fakeMigrate{stepsErr: boom}, func(m *Migrator) error { return m.Steps(2) }, "MIGRATION_STEPS_FAILED"},
		{"force", &fakeMigrate{}, func(m *Migrator) error { return m.Force(1) }, ""},
		{"force failure", &fakeMigrate{forceErr: boom}, func(m *Migrator) error { return m.Force(1) }, "MIGRATION_FORCE_FAILED"},
		{"force negative", &fakeMigrate{}, func(m *Migrator) error { return m.Force(-1) }, "INVALID_VERSION"},
		{"close", &fakeMigrate{}, (*Migrator).Close, ""},
		{"close source failure", &fakeMigrate{closeSourceErr: boom}, (*Migrator).Close, "MIGRATION_CLOSE_FAILED"},
		{"close database failure", &fakeMigrate{closeDbErr: boom}, (*Migrator).Close, "MIGRATION_CLOSE_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(&Migrator{m: tt.fake})
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestMigrator_ForceNegativeDoesNotReachDriver(t *testing.T) {
	fake := &fakeMigrate{}
	m := &Migrator{m: fake}
	require.Error(t, m.Force(-5))
	assert.Empty(t, fake.forced)
}

func TestMigrator_CloseBothFailures(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{closeSourceErr: errors.New("src"), closeDbErr: errors.New("db")}}
	err := m.Close()
	errutil.AssertErrorContext(t, err, "component", "both")
	assert.Contains(t, err.Error(), "source: src")
	assert.Contains(t, err.Error(), "database: db")
}

func TestMigrator_Version(t *testing.T) {
	t.Run("empty schema", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}
		v, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(0), v)
		assert.False(t, dirty)
	})

	t.Run("dirty", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{versionVal: 2, dirty: true}}
		v, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(2), v)
		assert.True(t, dirty)
	})

	t.Run("failure", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{versionErr: errors.New("no such table")}}
		_, _, err := m.Version()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrator_Status(t *testing.T) {
	all, err := Migrations()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(all), 2)

	t.Run("fresh database", func(t *testing.T) {
		st, err := (&Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}).Status()
		require.NoError(t, err)
		assert.Empty(t, st.Applied)
		assert.Equal(t, all, st.Pending)
	})

	t.Run("partially applied", func(t *testing.T) {
		st, err := (&Migrator{m: &fakeMigrate{versionVal: 1}}).Status()
		require.NoError(t, err)
		assert.Equal(t, all[:1], st.Applied)
		assert.Equal(t, all[1:], st.Pending)
	})

	t.Run("current", func(t *testing.T) {
		last := all[len(all)-1].Version
		st, err := (&Migrator{m: &fakeMigrate{versionVal: last}}).Status()
		require.NoError(t, err)
		assert.Equal(t, all, st.Applied)
		assert.Empty(t, st.Pending)
	})

	t.Run("version failure", func(t *testing.T) {
		_, err := (&Migrator{m: &fakeMigrate{versionErr: errors.New("timeout")}}).Status()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir(migrationsDir)
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	names := make(map[string]bool)
	for _, entry := range entries {
		names[entry.Name()] = true
		assert.True(t, pattern.MatchString(entry.Name()),
			"file %s should match NNNNNN_name.(up|down).sql", entry.Name())
	}
	assert.True(t, names["000001_create_users.up.sql"])
	assert.True(t, names["000001_create_users.down.sql"])

	all, err := Migrations()
	require.NoError(t, err)
	for _, mig := range all {
		assert.True(t, names[mig.Name+".down.sql"], "migration %s has no down file", mig.Name)
	}
}

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/000010_later.up.sql":    {Data: []byte("SELECT 1;")},
		"migrations/000002_second.up.sql":   {Data: []byte("SELECT 1;")},
		"migrations/000002_second.down.sql": {Data: []byte("SELECT 1;")},
		"migrations/notes.up.sql":           {Data: []byte("SELECT 1;")},
		"migrations/README.md":              {Data: []byte("docs")},
	}

	got, err := readMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []Migration{
		{Version: 2, Name: "000002_second"},
		{Version: 10, Name: "000010_later"},
	}, got)

	_, err = readMigrations(fstest.MapFS{})
	errutil.AssertErrorCode(t, err, "MIGRATION_LIST_FAILED")
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(1)
	require.NoError(t, err)
	assert.Equal(t, "000001_create_users", name)

	name, err = MigrationName(999)
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestMigrations_ReturnsCopy(t *testing.T) {
	first, err := Migrations()
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := Migrations()
	require.NoError(t, err)
	assert.Equal(t, "000001_create_users", second[0].Name)
}
