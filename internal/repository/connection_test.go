package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMongoOptions_Defaults(t *testing.T) {
	o := MongoOptions{URI: "mongodb://localhost:27017", Database: "carts"}.withDefaults()

	assert.Equal(t, uint64(defaultMongoPoolMax), o.MaxPoolSize)
	assert.Equal(t, uint64(defaultMongoPoolMin), o.MinPoolSize)
	assert.Equal(t, defaultMongoConnectTimeout, o.ConnectTimeout)
}

func TestMongoOptions_MinPoolNeverExceedsMax(t *testing.T) {
	o := MongoOptions{MaxPoolSize: 2, MinPoolSize: 10, ConnectTimeout: time.Second}.withDefaults()

	assert.Equal(t, uint64(2), o.MaxPoolSize)
	assert.Equal(t, uint64(2), o.MinPoolSize)
	assert.Equal(t, time.Second, o.ConnectTimeout)
}

func TestMongoOptions_ClientOptions(t *testing.T) {
	co := MongoOptions{URI: "mongodb://db:27017", Database: "carts", MaxPoolSize: 20, MinPoolSize: 4, ConnectTimeout: 4 * time.Second}.clientOptions()

	assert.Equal(t, uint64(20), *co.MaxPoolSize)
	assert.Equal(t, uint64(4), *co.MinPoolSize)
	assert.Equal(t, 4*time.Second, *co.ConnectTimeout)
	assert.Equal(t, 2*time.Second, *co.ServerSelectionTimeout)
	assert.Equal(t, []string{"db:27017"}, co.Hosts)
}

func TestConnectMongoDB_RequiresURIAndDatabase(t *testing.T) {
	_, err := ConnectMongoDB(context.Background(), MongoOptions{URI: "mongodb://localhost:27017"})

	assert.Error(t, err)
}
