//go:build integration

package database_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"shelterops/internal/platform/database"
	"shelterops/pkg/testutil/containers"
)

type MigrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
}

func TestMigrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(MigrationSuite))
}

func (s *MigrationSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
}

func (s *MigrationSuite) TestSchemaIsCurrent() {
	version, dirty, err := database.Version(s.postgres.DB)
	s.Require().NoError(err)
	s.False(dirty)
	s.Equal(uint(1), version)

	// Re-applying is a no-op.
	s.Require().NoError(database.Migrate(s.postgres.DB))
}
