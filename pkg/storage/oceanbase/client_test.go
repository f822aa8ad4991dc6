package oceanbase_test

import (
	"context"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem-recall/pkg/storage/oceanbase"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

func TestConfig_DSN(t *testing.T) {
	cfg := &oceanbase.Config{Host: "ob.local", User: "root@test", Password: "pw", DBName: "recall"}

	parsed, err := mysql.ParseDSN(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "root@test", parsed.User)
	assert.Equal(t, "pw", parsed.Passwd)
	assert.Equal(t, "ob.local:2881", parsed.Addr)
	assert.Equal(t, "recall", parsed.DBName)
	assert.True(t, parsed.ParseTime)
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := oceanbase.NewClient(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = oceanbase.NewClient(context.Background(), &oceanbase.Config{
		Host: "localhost", DBName: "recall", TablePrefix: "x y",
	})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}
