package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

func ptr(v float64) *float64 { return &v }

func samplePayload() solar.ForwardPayload {
	return solar.ForwardPayload{
		CurrentKWh: 2450,
		AverageKWh: solar.ForwardAverages{Mins15: ptr(2300), Mins60: ptr(2100.5)},
		UVLevel:    ptr(7.4),
	}
}

func TestHTTPForwarder_PostsPayloadWithAPIKey(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/ingest/solar", r.URL.Path)
		assert.Equal(t, "s3cret", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f := NewHTTPForwarder(srv.URL+"/", "s3cret", time.Second)
	require.NoError(t, f.Forward(context.Background(), samplePayload()))

	assert.Equal(t, 2450.0, got["current_kwh"])
	assert.Equal(t, 7.4, got["uv_level"])
	averages := got["average_kwh"].(map[string]interface{})
	assert.Equal(t, 2300.0, averages["mins_15"])
	assert.Equal(t, 2100.5, averages["mins_60"])
	assert.Contains(t, averages, "mins_180")
	assert.Nil(t, averages["mins_180"])
}

func TestHTTPForwarder_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewHTTPForwarder(srv.URL, "wrong", time.Second).Forward(context.Background(), samplePayload())
	assert.Error(t, err)
}

func TestKafkaForwarder_Publishes(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var p solar.ForwardPayload
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		if p.CurrentKWh != 2450 {
			return errors.New("unexpected current_kwh")
		}
		return nil
	})

	f := newKafkaForwarder(producer, "solar-readings")
	assert.Equal(t, "kafka:solar-readings", f.Name())
	require.NoError(t, f.Forward(context.Background(), samplePayload()))
	require.NoError(t, f.Close())
}

func TestKafkaForwarder_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	f := newKafkaForwarder(producer, "solar-readings")
	err := f.Forward(context.Background(), samplePayload())
	assert.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)
	require.NoError(t, f.Close())
}
