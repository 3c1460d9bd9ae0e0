package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/rollcall/internal/config"
	"github.com/dwsmith1983/rollcall/internal/testutil"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

func TestNewProvider_DynamoDB(t *testing.T) {
	cfg := &types.ProjectConfig{
		Provider: config.ProviderDynamoDB,
		DynamoDB: &types.DynamoDBConfig{TableName: "rollcall", Region: "us-east-1", Endpoint: "http://localhost:8000"},
	}
	p, err := newProvider(cfg)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestNewProvider_MissingSection(t *testing.T) {
	_, err := newProvider(&types.ProjectConfig{Provider: config.ProviderDynamoDB})
	assert.Error(t, err)

	_, err = newProvider(&types.ProjectConfig{Provider: config.ProviderFirestore})
	assert.Error(t, err)
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := newProvider(&types.ProjectConfig{Provider: "etcd"})
	assert.ErrorContains(t, err, "unsupported provider")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadSubjectDir_Valid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "math.yaml", `id: math
name: Mathematics
days: [Mon, Wed]
students:
  - id: stu1
    name: Ada
  - id: stu2
`)
	writeFile(t, dir, "README.md", "ignored")

	subjects, err := loadSubjectDir(dir)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "math", subjects[0].ID)
	assert.Equal(t, "Mathematics", subjects[0].Name)
	assert.Equal(t, []string{"Mon", "Wed"}, subjects[0].Days)
	require.Len(t, subjects[0].Students, 2)
	assert.Equal(t, "Ada", subjects[0].Students[0].Name)
}

func TestLoadSubjectDir_EmptyAndMissing(t *testing.T) {
	subjects, err := loadSubjectDir(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, subjects)

	subjects, err = loadSubjectDir("/nonexistent/path/xyzzy")
	require.NoError(t, err)
	assert.Nil(t, subjects)
}

func TestLoadSubjectDir_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", ":\n  :\n  - [invalid"},
		{"no days", "id: math\n"},
		{"student without id", "id: math\ndays: [Mon]\nstudents:\n  - name: Ada\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "bad.yaml", tt.content)
			_, err := loadSubjectDir(dir)
			assert.Error(t, err)
		})
	}
}

func TestRegisterSubjects(t *testing.T) {
	prov := testutil.NewMockProvider()
	subjects := []subjectFile{{
		Subject:  types.Subject{ID: "math", Days: []string{"Mon"}},
		Students: []studentFile{{ID: "stu1", Name: "Ada"}, {ID: "stu2"}},
	}}

	n, err := registerSubjects(context.Background(), prov, subjects)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := prov.ListSubjects(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	roster, err := prov.ListRoster(context.Background(), "math")
	require.NoError(t, err)
	assert.Len(t, roster, 2)
}

func TestInit_GeneratesLoadableProject(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "school")
	require.NoError(t, runInit(dir, config.ProviderFirestore, "Asia/Manila"))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderFirestore, cfg.Provider)
	assert.Equal(t, "Asia/Manila", cfg.Engine.Timezone)

	cal, err := config.LoadCalendar(cfg)
	require.NoError(t, err)
	require.NotNil(t, cal)
	assert.Equal(t, "school-holidays", cal.Name)

	subjects, err := loadSubjectDir(filepath.Join(dir, "subjects"))
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Len(t, subjects[0].Students, 2)
}

func TestInit_KeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, config.FileName, "provider: custom\n")

	require.NoError(t, runInit(dir, config.ProviderDynamoDB, "UTC"))

	data, err := os.ReadFile(filepath.Join(dir, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, "provider: custom\n", string(data))
}

func TestInit_UnknownProvider(t *testing.T) {
	assert.Error(t, runInit(t.TempDir(), "etcd", "UTC"))
}

func TestWireApp_RunsNightlyAgainstEmptyStore(t *testing.T) {
	prov := testutil.NewMockProvider()
	cfg := &types.ProjectConfig{
		Provider: config.ProviderDynamoDB,
		DynamoDB: &types.DynamoDBConfig{TableName: "rollcall"},
		Engine:   types.EngineConfig{Timezone: "UTC", LeaseDuration: "1m"},
		Alerts:   []types.AlertConfig{{Type: types.AlertLog}},
	}

	a, err := wireApp(context.Background(), cfg, prov, slog.Default())
	require.NoError(t, err)
	defer a.close()
	assert.Equal(t, 1, a.dispatcher.Len())

	report, err := a.nightly.Run(context.Background(), newActorID())
	require.NoError(t, err)
	require.NotNil(t, report.Backfill)
	assert.Equal(t, 0, report.Backfill.Created)
	require.NotNil(t, report.Streak)

	wm, err := prov.GetWatermark(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, wm.LastAbsenceBackfillDate)
	assert.Nil(t, wm.ProcessingLease)
}

func TestWireApp_BadCalendar(t *testing.T) {
	cfg := &types.ProjectConfig{
		Engine:       types.EngineConfig{Calendar: "missing"},
		CalendarDirs: []string{t.TempDir()},
	}
	_, err := wireApp(context.Background(), cfg, testutil.NewMockProvider(), slog.Default())
	assert.ErrorContains(t, err, "calendar")
}
