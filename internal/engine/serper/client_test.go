package serper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Toagan/leadgen-scraper/internal/model"
)

func testClient(baseURL string) *Client {
	return NewClient("test-key", "de",
		WithBaseURL(baseURL),
		WithRate(10000),
		WithBackoff(time.Millisecond, 2*time.Millisecond),
	)
}

func placesBody(n int, credits int) map[string]any {
	places := make([]map[string]any, n)
	for i := range places {
		places[i] = map[string]any{
			"cid":         fmt.Sprintf("cid-%03d", i),
			"title":       fmt.Sprintf("Praxis %d", i),
			"address":     "Hauptstraße 1",
			"phoneNumber": "+49 30 1234567",
			"website":     "https://example.de",
			"rating":      4.6,
			"ratingCount": 120,
			"category":    "Dentist",
			"latitude":    52.52,
			"longitude":   13.405,
			"types":       []string{"Dentist", "Doctor"},
		}
	}
	return map[string]any{"places": places, "credits": credits}
}

func cellFixture() model.Cell {
	return model.Cell{ID: "berlin", Name: "Berlin", Region: "de", Lat: 52.52, Lng: 13.405, Zoom: 14}
}

func TestFetchPageMapsListings(t *testing.T) {
	var gotReq placesRequest
	var gotKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-KEY")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(placesBody(3, 1))
	}))
	defer ts.Close()

	page, err := testClient(ts.URL).FetchPage(context.Background(), cellFixture(), "dentist in Berlin", 0)
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "dentist in Berlin", gotReq.Q)
	assert.Equal(t, "de", gotReq.GL)
	assert.Equal(t, "@52.520000,13.405000,14z", gotReq.LL)
	assert.Equal(t, 0, gotReq.Start)

	require.Len(t, page.Leads, 3)
	lead := page.Leads[0]
	assert.Equal(t, "cid-000", lead.PlaceRef)
	assert.Equal(t, "Praxis 0", lead.Name)
	assert.Equal(t, 4.6, lead.Rating)
	assert.Equal(t, 120, lead.ReviewCount)
	assert.Equal(t, "Dentist, Doctor", lead.Categories)
	assert.Equal(t, "Berlin", lead.Cell)
	assert.Equal(t, "dentist in Berlin", lead.Query)

	assert.Equal(t, -1, page.NextOffset, "a short page is the last page")
	assert.Equal(t, 1, page.Credits)
}

func TestFetchPagePaginationCursor(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req placesRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Start == 0 {
			json.NewEncoder(w).Encode(placesBody(PageSize, 1))
			return
		}
		json.NewEncoder(w).Encode(placesBody(4, 1))
	}))
	defer ts.Close()

	c := testClient(ts.URL)

	page, err := c.FetchPage(context.Background(), cellFixture(), "dentist", 0)
	require.NoError(t, err)
	assert.Equal(t, PageSize, page.NextOffset, "a full page advances the cursor")

	page, err = c.FetchPage(context.Background(), cellFixture(), "dentist", page.NextOffset)
	require.NoError(t, err)
	assert.Equal(t, -1, page.NextOffset)
}

func TestFetchPagePlaceRefFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"places": []map[string]any{
				{"cid": "cid-1", "title": "Has CID"},
				{"placeId": "place-2", "title": "Has placeId only"},
				{"title": "No identifier at all"},
			},
		})
	}))
	defer ts.Close()

	page, err := testClient(ts.URL).FetchPage(context.Background(), cellFixture(), "dentist", 0)
	require.NoError(t, err)

	require.Len(t, page.Leads, 2, "listings without any identifier are dropped")
	assert.Equal(t, "cid-1", page.Leads[0].PlaceRef)
	assert.Equal(t, "place-2", page.Leads[1].PlaceRef)
}

func TestCountryCode(t *testing.T) {
	c := NewClient("k", "de")
	assert.Equal(t, "gb", c.countryCode("uk"))
	assert.Equal(t, "us", c.countryCode("us"))
	assert.Equal(t, "de", c.countryCode(""), "falls back to the client default")
}

func TestTransientFailureRetries(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(placesBody(2, 1))
	}))
	defer ts.Close()

	page, err := testClient(ts.URL).FetchPage(context.Background(), cellFixture(), "dentist", 0)
	require.NoError(t, err)
	assert.Len(t, page.Leads, 2)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestTransientFailureExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	_, err := testClient(ts.URL).FetchPage(context.Background(), cellFixture(), "dentist", 0)
	require.Error(t, err)
	assert.Equal(t, int32(maxRetries), attempts.Load())

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, Transient, pe.Kind)
	assert.False(t, IsPermanent(err))
}

func TestExhaustedRetriesReturnWithoutFinalBackoff(t *testing.T) {
	var lastAttempt atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastAttempt.Store(time.Now().UnixNano())
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient("test-key", "de",
		WithBaseURL(ts.URL),
		WithRate(10000),
		WithBackoff(250*time.Millisecond, 250*time.Millisecond),
	)

	_, err := c.FetchPage(context.Background(), cellFixture(), "dentist", 0)
	require.Error(t, err)

	// The error surfaces right after the last attempt; no backoff wait
	// follows a failure that will not be retried.
	gap := time.Since(time.Unix(0, lastAttempt.Load()))
	assert.Less(t, gap, 150*time.Millisecond)
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := testClient(ts.URL).FetchPage(context.Background(), cellFixture(), "dentist", 0)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load(), "rejected requests are not retried")
	assert.True(t, IsPermanent(err))

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusForbidden, pe.StatusCode)
}

func TestMalformedResponseIsPermanent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer ts.Close()

	_, err := testClient(ts.URL).FetchPage(context.Background(), cellFixture(), "dentist", 0)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestFetchPageHonorsCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(ts.URL).FetchPage(ctx, cellFixture(), "dentist", 0)
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}
