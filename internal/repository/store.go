package repository

import "database/sql"

// Store groups the repositories a stage needs.
type Store struct {
	Campaigns  CampaignRepositoryInterface
	Prospects  ProspectRepositoryInterface
	Drafts     DraftRepositoryInterface
	SentEmails SentEmailRepositoryInterface
	Runs       RunRepositoryInterface
}

// NewPostgresStore wires the postgres repositories over one connection pool.
func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Campaigns:  &CampaignRepository{DB: db},
		Prospects:  &ProspectRepository{DB: db},
		Drafts:     &DraftRepository{DB: db},
		SentEmails: &SentEmailRepository{DB: db},
		Runs:       &RunRepository{DB: db},
	}
}
