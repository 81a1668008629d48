package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/listingboard/internal/models"
	"gorm.io/datatypes"
)

func TestMigrateSQLite(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	require.NoError(t, Health(db))

	listing := models.Listing{Kind: models.KindJob, OwnerID: "o1", ListingID: "l1", Title: "Barista"}
	require.NoError(t, db.Create(&listing).Error)
	assert.NotEmpty(t, listing.ID)

	var loaded models.Listing
	require.NoError(t, db.First(&loaded, "id = ?", listing.ID).Error)
	snap := loaded.Snapshot()
	assert.Equal(t, int64(0), snap.Version)
	assert.Equal(t, 0, snap.Statistics.Recommend.Count)
	assert.NotNil(t, snap.Statistics.Favorite.Users)

	stats := snap.Statistics
	stats.Favorite.Toggle("u1")
	require.NoError(t, db.Model(&models.Listing{}).Where("id = ?", listing.ID).
		Update("statistics", datatypes.NewJSONType(stats)).Error)

	require.NoError(t, db.First(&loaded, "id = ?", listing.ID).Error)
	assert.Equal(t, []string{"u1"}, loaded.Snapshot().Statistics.Favorite.Users)
}

func TestUniqueListingRef(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	require.NoError(t, db.Create(&models.Listing{Kind: models.KindJob, OwnerID: "o", ListingID: "l"}).Error)
	assert.Error(t, db.Create(&models.Listing{Kind: models.KindJob, OwnerID: "o", ListingID: "l"}).Error)
	assert.NoError(t, db.Create(&models.Listing{Kind: models.KindPartner, OwnerID: "o", ListingID: "l"}).Error)
}

func TestHealthWithoutDatabase(t *testing.T) {
	assert.Error(t, Health(nil))
	assert.Error(t, Migrate(nil))
}
