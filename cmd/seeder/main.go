// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/unclebandit/leadhunter-backend/internal/config"
	"github.com/unclebandit/leadhunter-backend/internal/db"
	"github.com/unclebandit/leadhunter-backend/internal/logger"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/repository"
)

type seedProspect struct {
	Name     string `yaml:"name"`
	Title    string `yaml:"title"`
	Company  string `yaml:"company"`
	Industry string `yaml:"industry"`
	Email    string `yaml:"email"`
	Location string `yaml:"location"`
	AIScore  *int   `yaml:"ai_score"`
}

type seedCampaign struct {
	Name               string          `yaml:"name"`
	CreatedBy          string          `yaml:"created_by"`
	Status             string          `yaml:"status"`
	Targeting          model.Targeting `yaml:"targeting"`
	DailyProspectLimit int             `yaml:"daily_prospect_limit"`
	MinAIScore         int             `yaml:"min_ai_score"`
	MinDraftScore      *int            `yaml:"min_draft_score"`
	EmailDailyLimit    int             `yaml:"email_daily_limit"`
	SendWeekends       bool            `yaml:"send_weekends"`
	EnableFollowups    *bool           `yaml:"enable_followups"`
	FollowupDays       []int           `yaml:"followup_days"`
	MaxFollowups       int             `yaml:"max_followups"`
	Prospects          []seedProspect  `yaml:"prospects"`
}

type seedFile struct {
	Campaigns []seedCampaign `yaml:"campaigns"`
}

func parseSeed(r io.Reader) (*seedFile, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}
	for i, c := range f.Campaigns {
		if c.Name == "" {
			return nil, fmt.Errorf("campaign #%d has no name", i+1)
		}
		switch model.CampaignStatus(c.Status) {
		case "", model.CampaignDraft, model.CampaignActive, model.CampaignPaused, model.CampaignScheduled:
		default:
			return nil, fmt.Errorf("campaign %q: unknown status %q", c.Name, c.Status)
		}
	}
	return &f, nil
}

// toCampaign applies the defaults a new campaign gets when a field is omitted.
func (s seedCampaign) toCampaign(now time.Time) *model.Campaign {
	c := &model.Campaign{
		OwnerID:            s.CreatedBy,
		Name:               s.Name,
		Status:             model.CampaignStatus(s.Status),
		Targeting:          s.Targeting,
		DailyProspectLimit: s.DailyProspectLimit,
		MinAIScore:         s.MinAIScore,
		MinDraftScore:      s.MinDraftScore,
		EmailDailyLimit:    s.EmailDailyLimit,
		SendWeekends:       s.SendWeekends,
		EnableFollowups:    true,
		FollowupDays:       s.FollowupDays,
		MaxFollowups:       s.MaxFollowups,
		CreatedAt:          now,
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.DailyProspectLimit == 0 {
		c.DailyProspectLimit = model.DefaultDailyProspectLimit
	}
	if c.MinAIScore == 0 {
		c.MinAIScore = 70
	}
	if c.EmailDailyLimit == 0 {
		c.EmailDailyLimit = model.DefaultEmailDailyLimit
	}
	if s.EnableFollowups != nil {
		c.EnableFollowups = *s.EnableFollowups
	}
	if len(c.FollowupDays) == 0 {
		c.FollowupDays = []int{3, 7, 14}
	}
	if c.MaxFollowups == 0 {
		c.MaxFollowups = model.DefaultMaxFollowups
	}
	return c
}

// seed writes every campaign and its manual prospects and returns the counts.
func seed(ctx context.Context, store *repository.Store, f *seedFile, now time.Time) (campaigns, prospects int, err error) {
	for _, sc := range f.Campaigns {
		c := sc.toCampaign(now)
		if err := store.Campaigns.Create(ctx, c); err != nil {
			return campaigns, prospects, fmt.Errorf("create campaign %q: %w", sc.Name, err)
		}
		campaigns++
		for _, sp := range sc.Prospects {
			cid := c.ID
			p := &model.Prospect{
				CampaignID: &cid,
				OwnerID:    c.OwnerID,
				Name:       sp.Name,
				Title:      sp.Title,
				Company:    sp.Company,
				Industry:   sp.Industry,
				Email:      model.NormalizeEmail(sp.Email),
				Location:   sp.Location,
				AIScore:    sp.AIScore,
				Status:     model.ProspectDiscovered,
				Source:     model.SourceManual,
				CreatedAt:  now,
			}
			if err := store.Prospects.Create(ctx, p); err != nil {
				return campaigns, prospects, fmt.Errorf("create prospect %q: %w", sp.Name, err)
			}
			prospects++
		}
	}
	return campaigns, prospects, nil
}

func main() {
	path := flag.String("file", "seed/campaigns.yaml", "YAML file with campaigns to load")
	flag.Parse()

	cfg, _, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	in, err := os.Open(*path)
	if err != nil {
		log.Fatal("Failed to open seed file", zap.String("file", *path), zap.Error(err))
	}
	defer in.Close()
	f, err := parseSeed(in)
	if err != nil {
		log.Fatal("Failed to parse seed file", zap.Error(err))
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DSN(), log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	campaigns, prospects, err := seed(ctx, repository.NewPostgresStore(conn), f, time.Now())
	if err != nil {
		log.Fatal("Seeding failed", zap.Error(err))
	}
	log.Info("Database seeding completed",
		zap.String("file", *path),
		zap.Int("campaigns", campaigns),
		zap.Int("prospects", prospects))
}
