package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/config"

	"github.com/ben-mays/kitchen-ledger/kitchen"
)

func challengeServer(t *testing.T, submitStatus string) (*httptest.Server, *[][]kitchen.Action) {
	t.Helper()
	var submissions [][]kitchen.Action
	mux := http.NewServeMux()
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		records := []OrderRecord{
			{ID: "o1", Name: "Cheese Pizza", Temperature: "hot", Freshness: 300},
			{ID: "o2", Name: "Ice Cream", Temperature: "cold", Freshness: 900},
			{ID: "o3", Name: "Bread", Temperature: "room", Freshness: 1800},
		}
		json.NewEncoder(w).Encode(records)
	})
	mux.HandleFunc("/actions", func(w http.ResponseWriter, r *http.Request) {
		var actions []kitchen.Action
		require.NoError(t, json.NewDecoder(r.Body).Decode(&actions))
		submissions = append(submissions, actions)
		json.NewEncoder(w).Encode(SubmitResponse{Status: submitStatus})
	})
	return httptest.NewServer(mux), &submissions
}

func TestFetchOrders(t *testing.T) {
	srv, _ := challengeServer(t, "success")
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	orders, err := c.FetchOrders()
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, "o1", orders[0].ID)
	assert.Equal(t, kitchen.TempHot, orders[0].Temp)
	assert.Equal(t, 300.0, orders[0].Freshness)
	assert.Equal(t, kitchen.TempRoom, orders[2].Temp)
}

func TestSubmit(t *testing.T) {
	srv, submissions := challengeServer(t, "success")
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	actions := []kitchen.Action{
		{Timestamp: 0, OrderID: "o1", Kind: kitchen.ActionPlace, Target: kitchen.ZoneHeater},
		{Timestamp: 1.5, OrderID: "o1", Kind: kitchen.ActionPickup, Target: kitchen.ZoneHeater},
	}
	require.NoError(t, c.Submit(actions))
	require.Len(t, *submissions, 1)
	assert.Equal(t, actions, (*submissions)[0])
}

func TestSubmitRejectedByServer(t *testing.T) {
	srv, _ := challengeServer(t, "error")
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	assert.Error(t, c.Submit(nil))
}

func TestSubmitServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	assert.Error(t, c.Submit(nil))
	_, err = c.FetchOrders()
	assert.Error(t, err)
}

func TestNewSource(t *testing.T) {
	srv, _ := challengeServer(t, "success")
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	source, err := c.NewSource()
	require.NoError(t, err)

	seen := 0
	for {
		_, ok := source.Next()
		if !ok {
			break
		}
		seen++
	}
	assert.Equal(t, 3, seen)
}

func TestLoadConfig(t *testing.T) {
	provider, err := config.NewYAML(config.Source(strings.NewReader("client:\n  url: http://localhost:9999\n")))
	require.NoError(t, err)

	c, err := LoadConfig(provider)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", c.BaseURL.String())
}
