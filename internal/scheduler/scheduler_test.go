package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	runs map[string][]error
}

func (r *recorder) ObserveJob(job string, err error) {
	if r.runs == nil {
		r.runs = map[string][]error{}
	}
	r.runs[job] = append(r.runs[job], err)
}

type fakeRefresher struct {
	n   int
	err error
	ctx context.Context
}

func (f *fakeRefresher) Refresh(ctx context.Context) (int, error) {
	f.ctx = ctx
	return f.n, f.err
}

type fakeTokens struct{ deleted []string }

func (f *fakeTokens) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func TestRunNowReportsToObserver(t *testing.T) {
	obs := &recorder{}
	s := New(zerolog.Nop(), time.UTC, obs)

	ok := &fakeRefresher{n: 3}
	require.NoError(t, s.RunNow(NewMasterRefreshJob(ok, time.Minute, zerolog.Nop())))
	_, hasDeadline := ok.ctx.Deadline()
	assert.True(t, hasDeadline)

	failing := &fakeRefresher{err: errors.New("broker down")}
	assert.Error(t, s.RunNow(NewMasterRefreshJob(failing, time.Minute, zerolog.Nop())))

	require.Len(t, obs.runs["master-refresh"], 2)
	assert.NoError(t, obs.runs["master-refresh"][0])
	assert.Error(t, obs.runs["master-refresh"][1])
}

func TestAddJobValidatesSchedule(t *testing.T) {
	s := New(zerolog.Nop(), nil, nil)
	job := NewSessionExpiryJob(&fakeTokens{}, "kite_access_token")

	assert.NoError(t, s.AddJob("0 0 6 * * *", job))
	assert.Error(t, s.AddJob("not a schedule", job))
}

func TestSessionExpiryJobDeletesToken(t *testing.T) {
	tokens := &fakeTokens{}
	require.NoError(t, NewSessionExpiryJob(tokens, "kite_access_token").Run())
	assert.Equal(t, []string{"kite_access_token"}, tokens.deleted)
}

func TestStartStop(t *testing.T) {
	s := New(zerolog.Nop(), time.UTC, nil)
	require.NoError(t, s.AddJob("@every 1h", NewSessionExpiryJob(&fakeTokens{}, "k")))
	s.Start()
	s.Stop()
}
