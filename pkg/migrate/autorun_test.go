package migrate

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partsreserve-backend/pkg/config"
	"github.com/angelmondragon/partsreserve-backend/pkg/db"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

func sqliteClient(t *testing.T) *db.Client {
	t.Helper()
	client, err := db.New(context.Background(), config.DBConfig{
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestMaybeRunDevMigratesSQLite(t *testing.T) {
	client := sqliteClient(t)
	logg := logger.New(logger.Options{ServiceName: "migrate-test", Output: io.Discard})
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvDev},
		FeatureFlags: config.FeatureFlagsConfig{UseSQLite: true, AutoMigrate: true},
	}

	require.NoError(t, MaybeRunDev(context.Background(), cfg, logg, client))
	for _, model := range models.All() {
		assert.True(t, client.DB().Migrator().HasTable(model), "missing table for %T", model)
	}
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	client := sqliteClient(t)
	logg := logger.New(logger.Options{ServiceName: "migrate-test", Output: io.Discard})
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvProd},
		FeatureFlags: config.FeatureFlagsConfig{UseSQLite: true, AutoMigrate: true},
	}

	require.NoError(t, MaybeRunDev(context.Background(), cfg, logg, client))
	assert.False(t, client.DB().Migrator().HasTable(&models.Stock{}))
}
