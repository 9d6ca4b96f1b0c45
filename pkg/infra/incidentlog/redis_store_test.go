package incidentlog_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/NeuralTrust/TrustSentinel/pkg/infra/incidentlog"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_AppendPushesAndTrims(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := incidentlog.NewRedisStore(testLogger(), client, incidentlog.RedisStoreConfig{Key: "incidents", MaxLength: 100})
	r := record(1)
	data, err := json.Marshal(r)
	require.NoError(t, err)

	mock.ExpectLPush("incidents", data).SetVal(1)
	mock.ExpectLTrim("incidents", 0, 99).SetVal("OK")

	require.NoError(t, store.Append(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_AppendFailure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := incidentlog.NewRedisStore(testLogger(), client, incidentlog.RedisStoreConfig{})
	r := record(1)
	data, err := json.Marshal(r)
	require.NoError(t, err)

	mock.ExpectLPush(incidentlog.DefaultRedisKey, data).SetErr(errors.New("connection refused"))

	err = store.Append(context.Background(), r)
	assert.ErrorContains(t, err, "connection refused")
}

func TestRedisStore_RecentSkipsMalformedEntries(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := incidentlog.NewRedisStore(testLogger(), client, incidentlog.RedisStoreConfig{})
	newest, err := json.Marshal(record(2))
	require.NoError(t, err)
	oldest, err := json.Marshal(record(1))
	require.NoError(t, err)

	mock.ExpectLRange(incidentlog.DefaultRedisKey, 0, 4).SetVal([]string{string(newest), "{broken", string(oldest)})

	records, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-2", "rec-1"}, ids(records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_RecentError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := incidentlog.NewRedisStore(testLogger(), client, incidentlog.RedisStoreConfig{})

	mock.ExpectLRange(incidentlog.DefaultRedisKey, 0, 9).SetErr(errors.New("timeout"))

	_, err := store.Recent(context.Background(), 10)
	assert.Error(t, err)
}
