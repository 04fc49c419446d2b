package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestApollo_NoKeyIsUnavailable(t *testing.T) {
	c := NewApollo("", "", zap.NewNop())

	_, err := c.Search(context.Background(), Criteria{}, 10)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestApollo_SearchParsesBothShapes(t *testing.T) {
	var got apolloRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"people":[
			{"id":"1","name":"Ada Lovelace","title":"CTO","emails":["ADA@Acme.io"],
			 "organization":{"name":"Acme","industry":"Software","employee_count":250}},
			{"id":"2","first_name":"Grace","last_name":"Hopper","email":"grace@navy.mil",
			 "organization_name":"Navy","industry":"Defense","employee_count":"10000+"}
		]}`))
	}))
	defer srv.Close()

	c := NewApollo("key", srv.URL, zap.NewNop())
	out, err := c.Search(context.Background(), Criteria{
		Titles:    []string{"CTO"},
		SizeRange: "50-500",
		Keywords:  []string{"ml", "platform"},
	}, 25)
	require.NoError(t, err)

	assert.Equal(t, "key", got.APIKey)
	assert.Equal(t, 25, got.PerPage)
	assert.Equal(t, []string{"50-500"}, got.OrganizationSizeRanges)
	assert.Equal(t, []string{"director", "vp", "c_suite"}, got.PersonSeniorities)
	assert.Equal(t, "ml, platform", got.Keywords)

	require.Len(t, out, 2)
	assert.Equal(t, Candidate{ExternalID: "1", Name: "Ada Lovelace", Title: "CTO", Company: "Acme", Industry: "Software", CompanySize: "250", Email: "ada@acme.io"}, out[0])
	assert.Equal(t, "Grace Hopper", out[1].Name)
	assert.Equal(t, "Navy", out[1].Company)
	assert.Equal(t, "10000+", out[1].CompanySize)
}

func TestApollo_ClientErrorIsUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewApollo("key", srv.URL, zap.NewNop())
	_, err := c.Search(context.Background(), Criteria{}, 10)

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
