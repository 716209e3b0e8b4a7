package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truenorth-finance/truenorth/internal/model"
)

type reply struct {
	body string
	err  error
}

// scriptedProvider returns replies in order, repeating the last one.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	r := p.replies[min(len(p.prompts)-1, len(p.replies)-1)]
	return r.body, r.err
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

// fakeClock records waits without sleeping.
type fakeClock struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	return ctx.Err()
}

func txn(id, desc, amount string) model.Transaction {
	return model.Transaction{
		ID:          id,
		Date:        time.Date(2025, 1, 28, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString(amount),
		Description: desc,
		Category:    "Uncategorized",
	}
}

func newTestClassifier(p Provider, clock *fakeClock, opts ...Option) *Classifier {
	return NewClassifier(p, append([]Option{WithSleep(clock.Sleep)}, opts...)...)
}

func TestAnalyzeChunk_Success(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{body: "```json\n" + `{"results":[
		{"id":"a","category":"Groceries","cleanMerchantName":"Woolworths","isSubscription":false,"isRecurring":false,"confidence":0.92},
		{"id":"b","category":"Crypto","cleanMerchantName":"Coinbase","confidence":1.7},
		{"id":"zzz","category":"Groceries"},
		{"category":"Groceries"}
	]}` + "\n```"}}}
	clock := &fakeClock{}
	c := newTestClassifier(p, clock)

	chunk := []model.Transaction{
		txn("a", "WOOLWORTHS 1234", "-50.00"),
		txn("b", "COINBASE", "-100.00"),
		txn("c", "MYSTERY", "-1.00"),
	}
	res := c.AnalyzeChunk(context.Background(), chunk)

	require.Len(t, res, 3)
	assert.Equal(t, "Groceries", res["a"].Category)
	assert.Equal(t, "Woolworths", res["a"].CleanMerchantName)
	assert.InDelta(t, 0.92, res["a"].Confidence, 1e-9)
	assert.Equal(t, "Bulk Analysis", res["a"].Reasoning)

	assert.Equal(t, "Uncategorized", res["b"].Category, "unknown category coerced")
	assert.InDelta(t, 1.0, res["b"].Confidence, 1e-9)

	assert.Equal(t, "Uncategorized", res["c"].Category)
	assert.Equal(t, "Skipped by LLM", res["c"].Reasoning)
	assert.Zero(t, res["c"].Confidence)

	assert.Equal(t, 1, p.calls())
	assert.Empty(t, clock.waits)
	assert.Contains(t, p.prompts[0], "a|WOOLWORTHS 1234|-50|2025-01-28")
}

func TestAnalyzeChunk_RateLimitBackoff(t *testing.T) {
	throttled := &Error{Kind: KindRateLimit, Message: "429 Too Many Requests", StatusCode: 429}
	p := &scriptedProvider{replies: []reply{
		{err: throttled},
		{err: throttled},
		{body: `{"results":[{"id":"a","category":"Transport","confidence":0.5}]}`},
	}}
	clock := &fakeClock{}
	c := newTestClassifier(p, clock)

	res := c.AnalyzeChunk(context.Background(), []model.Transaction{txn("a", "UBER", "-12.00")})
	assert.Equal(t, "Transport", res["a"].Category)
	assert.Equal(t, 3, p.calls())
	assert.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second}, clock.waits)
}

func TestAnalyzeChunk_UntypedRateLimitMessage(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		{err: errors.New("Rate limit reached for requests")},
		{body: `{"results":[{"id":"a","category":"Transport"}]}`},
	}}
	clock := &fakeClock{}
	c := newTestClassifier(p, clock)

	res := c.AnalyzeChunk(context.Background(), []model.Transaction{txn("a", "UBER", "-12.00")})
	assert.Equal(t, "Transport", res["a"].Category)
	assert.Equal(t, []time.Duration{4 * time.Second}, clock.waits)
}

func TestAnalyzeChunk_RetryAfterHintWins(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		{err: &Error{Kind: KindRateLimit, Message: "slow down", RetryAfter: 30 * time.Second}},
		{body: `{"results":[]}`},
	}}
	clock := &fakeClock{}
	c := newTestClassifier(p, clock)

	c.AnalyzeChunk(context.Background(), []model.Transaction{txn("a", "UBER", "-12.00")})
	assert.Equal(t, []time.Duration{30 * time.Second}, clock.waits)
}

func TestAnalyzeChunk_TransportFailureFallback(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{err: &Error{Kind: KindTransport, Message: "connection reset"}}}}
	clock := &fakeClock{}
	c := newTestClassifier(p, clock)

	chunk := []model.Transaction{txn("a", "UBER", "-12.00"), txn("b", "COLES", "-40.00")}
	res := c.AnalyzeChunk(context.Background(), chunk)

	require.Len(t, res, 2)
	for _, id := range []string{"a", "b"} {
		assert.Equal(t, "Uncategorized", res[id].Category)
		assert.Equal(t, "Error: connection reset", res[id].Reasoning)
		assert.Zero(t, res[id].Confidence)
	}
	assert.Equal(t, 3, p.calls())
	// Non-throttling failures retry without waiting.
	assert.Equal(t, []time.Duration{0, 0}, clock.waits)
}

func TestAnalyzeChunk_ParseFailuresRetried(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"empty body", "   ", "Error: No content received"},
		{"invalid json", "I cannot help with that", "Error: Invalid JSON response from LLM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{replies: []reply{{body: tt.body}}}
			c := newTestClassifier(p, &fakeClock{})

			res := c.AnalyzeChunk(context.Background(), []model.Transaction{txn("a", "UBER", "-12.00")})
			assert.Equal(t, tt.reason, res["a"].Reasoning)
			assert.Equal(t, 3, p.calls())
		})
	}
}

func TestAnalyzeChunk_Empty(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{body: "{}"}}}
	c := newTestClassifier(p, &fakeClock{})
	assert.Empty(t, c.AnalyzeChunk(context.Background(), nil))
	assert.Zero(t, p.calls())
}

func resultsFor(ids ...string) string {
	items := make([]string, len(ids))
	for i, id := range ids {
		items[i] = fmt.Sprintf(`{"id":%q,"category":"Shopping","confidence":0.8}`, id)
	}
	return `{"results":[` + strings.Join(items, ",") + `]}`
}

func TestAnalyzeBatch_ChunksSequentially(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		{body: resultsFor("1", "2")},
		{body: resultsFor("3", "4")},
		{body: resultsFor("5")},
	}}
	clock := &fakeClock{}
	c := newTestClassifier(p, clock, WithChunkDelay(time.Second))

	var txns []model.Transaction
	for i := 1; i <= 5; i++ {
		txns = append(txns, txn(fmt.Sprint(i), "SHOP", "-1.00"))
	}

	var progress [][2]int
	res, err := c.AnalyzeBatch(context.Background(), txns, 2, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)
	assert.Len(t, res, 5)
	for _, r := range res {
		assert.Equal(t, "Shopping", r.Category)
	}
	assert.Equal(t, [][2]int{{2, 5}, {4, 5}, {5, 5}}, progress)
	assert.Equal(t, 3, p.calls())
	// Delay between chunks only, never after the last.
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.waits)
}

func TestAnalyzeBatch_ProgressOnFailedChunk(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{err: errors.New("boom")}}}
	c := newTestClassifier(p, &fakeClock{}, WithBatchSize(10))

	calls := 0
	res, err := c.AnalyzeBatch(context.Background(), []model.Transaction{txn("a", "X", "-1")}, 0, func(int, int) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "Error: boom", res["a"].Reasoning)
}

func TestAnalyzeBatch_CanceledBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedProvider{replies: []reply{{body: resultsFor("1")}}}
	c := newTestClassifier(p, &fakeClock{})

	txns := []model.Transaction{txn("1", "A", "-1"), txn("2", "B", "-1")}
	res, err := c.AnalyzeBatch(ctx, txns, 1, func(int, int) { cancel() })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res, 1)
	assert.Equal(t, 1, p.calls())
}

func TestAnalyzeTransaction(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{body: `{"results":[{"id":"a","category":"Dining Out","cleanMerchantName":"KFC","confidence":0.7}]}`}}}
	c := newTestClassifier(p, &fakeClock{})

	r := c.AnalyzeTransaction(context.Background(), txn("a", "KFC TWEED", "-15.00"))
	assert.Equal(t, "Dining Out", r.Category)
	assert.Equal(t, "KFC", r.CleanMerchantName)
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt([]model.Transaction{
		txn("a", "A|B", "-1.50"),
		txn("b", "SALARY", "2000"),
	})
	assert.True(t, strings.HasPrefix(prompt, "Categorize: Groceries,Dining Out,"))
	assert.Contains(t, prompt, `"results"`)
	assert.True(t, strings.HasSuffix(prompt, "Data:\na|A B|-1.5|2025-01-28\nb|SALARY|2000|2025-01-28"))
}

func TestParseResponse_Failures(t *testing.T) {
	chunk := []model.Transaction{{ID: "a", Description: "COLES"}}

	tests := []struct {
		name     string
		body     string
		msg      string
		hasCause bool
	}{
		{name: "empty", body: "  \n", msg: "No content received"},
		{name: "not json", body: "sorry, I can't help", msg: "Invalid JSON response from LLM", hasCause: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.body, chunk)
			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, KindParseFailure, e.Kind)
			assert.Equal(t, tt.msg, e.Message)
			assert.Equal(t, tt.hasCause, errors.Unwrap(err) != nil)
		})
	}
}
