package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// MasterRefresher refreshes the contract master cache.
type MasterRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// MasterRefreshJob downloads the contract master from the broker.
type MasterRefreshJob struct {
	master  MasterRefresher
	timeout time.Duration
	log     zerolog.Logger
}

// NewMasterRefreshJob creates the master refresh job.
func NewMasterRefreshJob(master MasterRefresher, timeout time.Duration, log zerolog.Logger) *MasterRefreshJob {
	return &MasterRefreshJob{master: master, timeout: timeout, log: log}
}

func (j *MasterRefreshJob) Name() string { return "master-refresh" }

func (j *MasterRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.master.Refresh(ctx)
	if err != nil {
		return err
	}
	j.log.Info().Int("records", n).Msg("Master refresh job cached records")
	return nil
}

// TokenStore deletes stored values.
type TokenStore interface {
	Delete(ctx context.Context, key string) error
}

// SessionExpiryJob forgets the broker access token once the broker has
// invalidated it for the day.
type SessionExpiryJob struct {
	tokens TokenStore
	key    string
}

// NewSessionExpiryJob creates a job deleting key from tokens.
func NewSessionExpiryJob(tokens TokenStore, key string) *SessionExpiryJob {
	return &SessionExpiryJob{tokens: tokens, key: key}
}

func (j *SessionExpiryJob) Name() string { return "session-expiry" }

func (j *SessionExpiryJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return j.tokens.Delete(ctx, j.key)
}
