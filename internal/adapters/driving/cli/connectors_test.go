package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

func TestConnectorsCmd_ListsConfigKeys(t *testing.T) {
	catalog := fakeCatalog{{
		ID:          "notion",
		Description: "Pages of Notion databases",
		ConfigKeys: []domain.ConfigKey{
			{Key: "database_ids", Description: "Databases to mirror", Required: true},
			{Key: "base_url", Description: "API base URL"},
		},
	}}

	out, err := execute(t, &Services{Sync: newFakeController(), Connectors: catalog}, "connectors")

	require.NoError(t, err)
	assert.Contains(t, out, "notion - Pages of Notion databases")
	assert.Contains(t, out, "database_ids (required): Databases to mirror")
	assert.Contains(t, out, "base_url: API base URL")
}

func TestConnectorsCmd_NoCatalog(t *testing.T) {
	_, err := execute(t, &Services{Sync: newFakeController()}, "connectors")

	assert.Error(t, err)
}
