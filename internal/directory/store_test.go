package directory

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Runs only against a scratch database: TEST_DATABASE_URL=postgres://...
func TestStore_Contract(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := Open(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrator().DropTable(&memberRow{}, &trackRow{}, &teamRow{}))

	s, err := NewStore(db)
	require.NoError(t, err)
	directoryContract(t, s)
}
