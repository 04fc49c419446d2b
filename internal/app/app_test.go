package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/app"
	"github.com/unclebandit/leadhunter-backend/internal/config"
	"github.com/unclebandit/leadhunter-backend/internal/lock"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/queue"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreDriver:        "memory",
		Timezone:           "UTC",
		PlatformDailyLimit: 100,
		SendCooldown:       72 * time.Hour,
		SchedulerInterval:  time.Hour,
	}
}

func TestBuild_LocalBackends(t *testing.T) {
	a, err := app.Build(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &queue.InMemoryQueue{}, a.Queue)
	assert.IsType(t, &lock.LocalLocker{}, a.Locker)
	assert.Nil(t, a.Hunt.Search)
	assert.Nil(t, a.Hunt.Writer)
	assert.NotNil(t, a.Hunt.Scorer)
	assert.False(t, a.Send.Dispatcher.Configured())
	assert.Equal(t, time.Hour, a.Runner().Interval)
}

func TestBuild_RedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisAddr = mr.Addr()

	a, err := app.Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	assert.IsType(t, &lock.RedisLocker{}, a.Locker)
}

func TestBuild_RejectsUnknownLLMProvider(t *testing.T) {
	cfg := memoryConfig()
	cfg.LLMProvider = "markov"
	_, err := app.Build(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestBuild_DeliveryEventsReachLifecycle(t *testing.T) {
	ctx := context.Background()
	a, err := app.Build(ctx, memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.StartSubscriber())

	c := &model.Campaign{Name: "c", Status: model.CampaignActive}
	require.NoError(t, a.Store.Campaigns.Create(ctx, c))
	cid := c.ID
	p := &model.Prospect{CampaignID: &cid, Name: "Ada", Company: "Acme", Email: "ada@acme.io", Status: model.ProspectContacted}
	require.NoError(t, a.Store.Prospects.Create(ctx, p))

	srv := httptest.NewServer(a.Router())
	defer srv.Close()
	resp, err := http.Post(srv.URL+"/webhooks/delivery", "application/json",
		strings.NewReader(`{"type":"email.replied","data":{"tags":[{"name":"prospect_id","value":"`+p.ID+`"}]}}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Close drains the in-memory queue
	require.NoError(t, a.Close())
	got, err := a.Store.Prospects.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Replied)
	camp, err := a.Store.Campaigns.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, camp.RepliedCount)
}
