package executor

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/attrsync/internal/ir"
	"github.com/roach88/attrsync/internal/testutil"
)

// memorySink collects records and counts flushes.
type memorySink struct {
	records []ir.ExecutionRecord
	flushed int
	flushes int
	failOn  int
}

func (s *memorySink) Append(_ context.Context, rec ir.ExecutionRecord) error {
	if s.failOn > 0 && len(s.records)+1 == s.failOn {
		return errors.New("disk full")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Flush(context.Context) error {
	s.flushes++
	s.flushed = len(s.records)
	return nil
}

// failingDoer returns a transport error on every call.
type failingDoer struct{ calls int }

func (d *failingDoer) Do(*http.Request) (*http.Response, error) {
	d.calls++
	return nil, errors.New("dial tcp: connection refused\n")
}

// cancelingDoer cancels the run while the call is in flight, then returns
// status.
type cancelingDoer struct {
	cancel context.CancelFunc
	status int
	calls  int
}

func (d *cancelingDoer) Do(*http.Request) (*http.Response, error) {
	d.calls++
	d.cancel()
	return &http.Response{
		StatusCode: d.status,
		Body:       io.NopCloser(strings.NewReader("done")),
	}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			Batch: ir.Batch{
				GroupNumber: 1,
				BatchNumber: i + 1,
				AssetIDs:    []string{"A", "B"},
			},
			Payload: []byte(`{"n":` + string(rune('0'+i)) + `}`),
		}
	}
	return items
}

func newTestExecutor(t *testing.T, srv *testutil.ScriptedServer, sleeper Sleeper, mutate func(*Config)) *Executor {
	t.Helper()
	cfg := Config{
		Target:      Target{Scheme: "http", FQDN: srv.Host(), Endpoint: DefaultEndpoint},
		Credentials: Credentials{Username: "user", Password: "p@ss"},
		APIFunction: ir.APIFunctionUpdate,
		Policy:      RetryPolicy{MaxRetries: 3, MinDelay: 30 * time.Second, MaxDelay: 300 * time.Second},
		RunID:       "run-1",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg,
		WithDoer(srv.Client()),
		WithSleeper(sleeper),
		WithLogger(discardLogger()),
	)
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	srv := testutil.NewScriptedServer(
		testutil.Response{Status: 429, Body: "too many"},
		testutil.Response{Status: 429, Body: "too many"},
		testutil.Response{Status: 200, Body: "ok\n  done"},
	)
	defer srv.Close()
	sleeper := testutil.NewRecordingSleeper()
	sink := &memorySink{}

	summary, err := newTestExecutor(t, srv, sleeper, nil).Execute(context.Background(), testItems(1), sink)
	require.NoError(t, err)

	assert.Equal(t, 3, srv.Calls())
	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, ir.Status("200"), rec.Status)
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, "ok done", rec.Log)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, ir.APIFunctionUpdate, rec.APIFunction)
	assert.Equal(t, []time.Duration{30 * time.Second, 165 * time.Second}, sleeper.Delays())

	assert.Equal(t, Summary{Batches: 1, Succeeded: 1, Calls: 3, Retries: 2}, summary)
	assert.Equal(t, 1, sink.flushed)
}

func TestExecuteRequestShape(t *testing.T) {
	srv := testutil.NewScriptedServer()
	defer srv.Close()

	items := testItems(1)
	items[0].Batch.GroupNumber = 4
	items[0].Batch.BatchNumber = 2

	_, err := newTestExecutor(t, srv, testutil.NewRecordingSleeper(), func(c *Config) {
		c.ClientID = "my-client"
	}).Execute(context.Background(), items, &memorySink{})
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, DefaultEndpoint, req.Path)
	assert.Equal(t, string(items[0].Payload), req.Body)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "my-client", req.Header.Get("X-Requested-With"))
	assert.Equal(t, "my-client function=update group=4 batch=2", req.Header.Get("User-Agent"))

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:p@ss"))
	assert.Equal(t, want, req.Header.Get("Authorization"))
}

func TestExecuteDefaultClientID(t *testing.T) {
	srv := testutil.NewScriptedServer()
	defer srv.Close()

	_, err := newTestExecutor(t, srv, testutil.NewRecordingSleeper(), nil).
		Execute(context.Background(), testItems(1), &memorySink{})
	require.NoError(t, err)
	assert.Equal(t, DefaultClientID, srv.Requests()[0].Header.Get("X-Requested-With"))
}

func TestExecuteDryRun(t *testing.T) {
	srv := testutil.NewScriptedServer()
	defer srv.Close()
	sink := &memorySink{}

	summary, err := newTestExecutor(t, srv, testutil.NewRecordingSleeper(), func(c *Config) {
		c.DryRun = true
	}).Execute(context.Background(), testItems(5), sink)
	require.NoError(t, err)

	assert.Equal(t, 0, srv.Calls())
	require.Len(t, sink.records, 5)
	for i, rec := range sink.records {
		assert.Equal(t, ir.StatusNotAttempted, rec.Status)
		assert.Equal(t, 0, rec.Attempts)
		assert.Equal(t, i+1, rec.Batch.BatchNumber, "records keep input order")
	}
	assert.Equal(t, Summary{Batches: 5, NotAttempted: 5}, summary)
}

func TestExecuteExhaustedContinues(t *testing.T) {
	srv := testutil.NewScriptedServer(
		testutil.Response{Status: 503, Body: "down"},
		testutil.Response{Status: 503, Body: "down"},
		testutil.Response{Status: 503, Body: "still down"},
	)
	defer srv.Close()
	sink := &memorySink{}

	summary, err := newTestExecutor(t, srv, testutil.NewRecordingSleeper(), nil).
		Execute(context.Background(), testItems(2), sink)
	require.NoError(t, err)

	require.Len(t, sink.records, 2)
	assert.Equal(t, ir.Status("503"), sink.records[0].Status)
	assert.Equal(t, "still down", sink.records[0].Log)
	assert.Equal(t, 3, sink.records[0].Attempts)
	assert.Equal(t, ir.Status("200"), sink.records[1].Status)
	assert.Equal(t, 1, summary.Exhausted)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 4, srv.Calls())
}

func TestExecuteTerminalStatusAborts(t *testing.T) {
	srv := testutil.NewScriptedServer(
		testutil.Response{Status: 200},
		testutil.Response{Status: 401, Body: "unauthorized"},
	)
	defer srv.Close()
	sink := &memorySink{}

	summary, err := newTestExecutor(t, srv, testutil.NewRecordingSleeper(), nil).
		Execute(context.Background(), testItems(4), sink)
	require.Error(t, err)
	assert.True(t, IsTerminalStatus(err))

	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 2, ee.BatchNumber)
	assert.Equal(t, ir.Status("401"), ee.Status)
	assert.Equal(t, 1, ee.Attempts)

	assert.Equal(t, 2, srv.Calls(), "remaining batches are not attempted")
	require.Len(t, sink.records, 2, "the failing batch is still recorded")
	assert.Equal(t, "unauthorized", sink.records[1].Log)
	assert.Equal(t, 2, sink.flushed)
	assert.True(t, summary.Aborted)
}

func TestExecuteTransportExhaustedAborts(t *testing.T) {
	doer := &failingDoer{}
	sleeper := testutil.NewRecordingSleeper()
	sink := &memorySink{}

	ex := New(Config{
		Target:      Target{FQDN: "example.invalid", Endpoint: DefaultEndpoint},
		APIFunction: ir.APIFunctionAdd,
		Policy:      RetryPolicy{MaxRetries: 3, MinDelay: time.Second, MaxDelay: 3 * time.Second},
	}, WithDoer(doer), WithSleeper(sleeper), WithLogger(discardLogger()))

	summary, err := ex.Execute(context.Background(), testItems(2), sink)
	require.Error(t, err)
	assert.True(t, IsTransportExhausted(err))
	assert.Contains(t, err.Error(), "TRANSPORT_EXHAUSTED")

	assert.Equal(t, 3, doer.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.Delays())
	require.Len(t, sink.records, 1)
	assert.Equal(t, ir.StatusTransportError, sink.records[0].Status)
	assert.Equal(t, "dial tcp: connection refused", sink.records[0].Log)
	assert.True(t, summary.Aborted)
}

func TestExecuteTransportThenSuccess(t *testing.T) {
	srv := testutil.NewScriptedServer(
		testutil.Response{Drop: true},
		testutil.Response{Status: 200, Body: "ok"},
	)
	defer srv.Close()
	sink := &memorySink{}

	_, err := newTestExecutor(t, srv, testutil.NewRecordingSleeper(), nil).
		Execute(context.Background(), testItems(1), sink)
	require.NoError(t, err)

	require.Len(t, sink.records, 1)
	assert.Equal(t, ir.Status("200"), sink.records[0].Status)
	assert.Equal(t, 2, sink.records[0].Attempts)
}

func TestExecuteCanceledDuringDelay(t *testing.T) {
	srv := testutil.NewScriptedServer(testutil.Response{Status: 429})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeper := testutil.NewRecordingSleeper()
	sleeper.OnSleep = func(int, time.Duration) { cancel() }
	sink := &memorySink{}

	_, err := newTestExecutor(t, srv, sleeper, nil).Execute(ctx, testItems(3), sink)
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, sink.records, 1)
	assert.Equal(t, ir.Status("429"), sink.records[0].Status)
	assert.Equal(t, 1, sink.flushed)
}

func TestExecuteCanceledAfterSuccessfulCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	doer := &cancelingDoer{cancel: cancel, status: 200}
	sink := &memorySink{}

	ex := New(Config{
		Target:      Target{FQDN: "example.invalid", Endpoint: DefaultEndpoint},
		APIFunction: ir.APIFunctionUpdate,
		Policy:      RetryPolicy{MaxRetries: 3, MinDelay: time.Second, MaxDelay: 3 * time.Second},
	}, WithDoer(doer), WithSleeper(testutil.NewRecordingSleeper()), WithLogger(discardLogger()))

	summary, err := ex.Execute(ctx, testItems(2), sink)
	require.Error(t, err)
	assert.True(t, IsCanceled(err))

	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 2, ee.BatchNumber, "cancellation stops the next batch")
	assert.Equal(t, ir.StatusNotAttempted, ee.Status)

	assert.Equal(t, 1, doer.calls)
	require.Len(t, sink.records, 1)
	assert.Equal(t, ir.Status("200"), sink.records[0].Status)
	assert.Equal(t, 1, summary.Succeeded)
	assert.True(t, summary.Aborted)
}

func TestExecuteCanceledAfterLastRetryableStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	doer := &cancelingDoer{cancel: cancel, status: 503}
	sink := &memorySink{}

	ex := New(Config{
		Target:      Target{FQDN: "example.invalid", Endpoint: DefaultEndpoint},
		APIFunction: ir.APIFunctionUpdate,
		Policy:      RetryPolicy{MaxRetries: 1, MinDelay: time.Second, MaxDelay: time.Second},
	}, WithDoer(doer), WithSleeper(testutil.NewRecordingSleeper()), WithLogger(discardLogger()))

	summary, err := ex.Execute(ctx, testItems(1), sink)
	require.NoError(t, err, "the only batch finished before the run noticed")

	require.Len(t, sink.records, 1)
	assert.Equal(t, ir.Status("503"), sink.records[0].Status)
	assert.Equal(t, 1, summary.Exhausted)
	assert.False(t, summary.Aborted)
}

func TestExecuteInvalidRequestIsNotRetried(t *testing.T) {
	doer := &failingDoer{}
	sleeper := testutil.NewRecordingSleeper()
	sink := &memorySink{}

	ex := New(Config{
		Target:      Target{Scheme: "http", FQDN: "bad host", Endpoint: DefaultEndpoint},
		APIFunction: ir.APIFunctionUpdate,
		Policy:      RetryPolicy{MaxRetries: 3, MinDelay: time.Second, MaxDelay: 3 * time.Second},
	}, WithDoer(doer), WithSleeper(sleeper), WithLogger(discardLogger()))

	summary, err := ex.Execute(context.Background(), testItems(2), sink)
	require.Error(t, err)
	assert.True(t, IsInvalidRequest(err))
	assert.False(t, IsTransportExhausted(err))

	assert.Equal(t, 0, doer.calls)
	assert.Empty(t, sleeper.Delays())
	require.Len(t, sink.records, 1)
	assert.Equal(t, ir.StatusNotAttempted, sink.records[0].Status)
	assert.Equal(t, 0, sink.records[0].Attempts)
	assert.Contains(t, sink.records[0].Log, "build request")
	assert.True(t, summary.Aborted)
}

func TestExecuteCanceledBeforeStart(t *testing.T) {
	srv := testutil.NewScriptedServer()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &memorySink{}

	_, err := newTestExecutor(t, srv, testutil.NewRecordingSleeper(), nil).Execute(ctx, testItems(2), sink)
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
	assert.Empty(t, sink.records)
	assert.Equal(t, 0, srv.Calls())
	assert.Equal(t, 1, sink.flushes)
}

func TestExecuteSinkError(t *testing.T) {
	srv := testutil.NewScriptedServer()
	defer srv.Close()

	_, err := newTestExecutor(t, srv, testutil.NewRecordingSleeper(), nil).
		Execute(context.Background(), testItems(3), &memorySink{failOn: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append execution record")
}

func TestExecuteEmpty(t *testing.T) {
	sink := &memorySink{}
	summary, err := New(Config{}, WithLogger(discardLogger())).Execute(context.Background(), nil, sink)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Equal(t, 1, sink.flushes)
}

func TestTargetURL(t *testing.T) {
	assert.Equal(t, "https://"+DefaultFQDN+DefaultEndpoint, Target{FQDN: DefaultFQDN, Endpoint: DefaultEndpoint}.URL())
	assert.Equal(t, "http://localhost:8080/x", Target{Scheme: "http", FQDN: "localhost:8080", Endpoint: "/x"}.URL())
}

func TestCredentials(t *testing.T) {
	c := Credentials{Username: "u", Password: "secret"}
	assert.Equal(t, "Basic dTpzZWNyZXQ=", c.BasicAuth())
	assert.Equal(t, c.BasicAuth(), c.BasicAuth())
	assert.NotContains(t, c.String(), "secret")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.True(t, strings.HasSuffix(truncate(strings.Repeat("x", 600), 512), "..."))
}
