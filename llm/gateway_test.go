package llm

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/pkg/logging"
	"github.com/sweetpotato0/travel-router/pkg/retry"
)

type fakeClient struct {
	params Params
	fail   int
	calls  int
	mu     sync.Mutex
}

func (c *fakeClient) Complete(_ context.Context, prompt string) (*Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.fail {
		return nil, stderrors.New("backend down")
	}
	return &Completion{Text: "  echo: " + prompt + "\n", PromptTokens: 3, CompletionTokens: 4}, nil
}

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func newGateway(t *testing.T, backend string, clients map[Params]*fakeClient, opts ...Option) *Gateway {
	t.Helper()
	var mu sync.Mutex
	factory := func(p Params) (Client, error) {
		mu.Lock()
		defer mu.Unlock()
		c := &fakeClient{params: p}
		clients[p] = c
		return c, nil
	}
	opts = append([]Option{
		WithLogger(logging.Discard()),
		WithRetryPolicy(retry.Policy{Timeout: time.Second, Retries: 1}),
	}, opts...)
	return NewGateway(backend, factory, opts...)
}

func TestResolvePriority(t *testing.T) {
	gov := Governance{BackendOpenAI: {"classifier": {Temperature: ptr(0.0), Model: ptr("gov-model")}}}
	o := &Overrides{Model: ptr("override-model"), Temperature: ptr(0.9), MaxTokens: ptr[int64](42)}

	p := Resolve(BackendOpenAI, RoleClassifier, gov, o, Defaults())
	assert.Equal(t, "gov-model", p.Model)
	assert.Equal(t, 0.0, p.Temperature)
	assert.Equal(t, int64(42), p.MaxTokens)

	p = Resolve(BackendOpenAI, RoleGenerator, gov, nil, Defaults())
	assert.Equal(t, "gpt-4o-mini", p.Model)
	assert.Equal(t, 0.3, p.Temperature)
	assert.Equal(t, int64(1024), p.MaxTokens)
}

func TestResolveLocalDefaults(t *testing.T) {
	p := Resolve(BackendLocal, RoleClassifier, nil, nil, Defaults())
	assert.Equal(t, "llama3.2:3b", p.Model)
	assert.Equal(t, int64(256), p.MaxTokens)
	assert.Equal(t, 0.9, p.TopP)
	assert.Equal(t, int64(40), p.TopK)
	assert.Equal(t, "json", p.Format)

	p = Resolve(BackendLocal, RoleGenerator, nil, &Overrides{NumPredict: ptr[int64](64)}, Defaults())
	assert.Equal(t, "llama3.1:8b", p.Model)
	assert.Equal(t, int64(64), p.MaxTokens)
	assert.Equal(t, "", p.Format)
}

func TestGovernanceNumPredictAliasesMaxTokens(t *testing.T) {
	gov := Governance{BackendLocal: {"generator": {NumPredict: ptr[int64](512)}}}
	p := Resolve(BackendLocal, RoleGenerator, gov, &Overrides{MaxTokens: ptr[int64](10)}, Defaults())
	assert.Equal(t, int64(512), p.MaxTokens)
}

func TestInvokeRecordsUsageAndTrims(t *testing.T) {
	clients := map[Params]*fakeClient{}
	gw := newGateway(t, BackendOpenAI, clients)
	usage := NewUsage()

	out, err := gw.Invoke(context.Background(), Request{Role: RoleGenerator, Prompt: "hi", Usage: usage})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
	assert.Equal(t, int64(7), usage.Total())
	assert.Equal(t, int64(3), usage.Prompt())
	assert.Equal(t, int64(4), usage.Completion())
	assert.Equal(t, int64(1), usage.Calls())
}

func TestInvokeMemoizesClientsPerParams(t *testing.T) {
	clients := map[Params]*fakeClient{}
	gw := newGateway(t, BackendOpenAI, clients)
	ctx := context.Background()

	for range 3 {
		_, err := gw.Invoke(ctx, Request{Role: RoleClassifier, Prompt: "x"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, gw.CachedClients())

	_, err := gw.Invoke(ctx, Request{Role: RoleClassifier, Prompt: "x", Overrides: &Overrides{Temperature: ptr(0.5)}})
	require.NoError(t, err)
	_, err = gw.Invoke(ctx, Request{Role: RoleGenerator, Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, 3, gw.CachedClients())
}

func TestInvokeBoundsClientMemo(t *testing.T) {
	clients := map[Params]*fakeClient{}
	gw := newGateway(t, BackendOpenAI, clients)
	ctx := context.Background()

	for n := range 200 {
		o := &Overrides{Temperature: ptr(float64(n) / 1000)}
		_, err := gw.Invoke(ctx, Request{Role: RoleGenerator, Prompt: "x", Overrides: o})
		require.NoError(t, err)
	}
	assert.Equal(t, maxClients, gw.CachedClients())

	before := len(clients)
	_, err := gw.Invoke(ctx, Request{Role: RoleGenerator, Prompt: "x", Overrides: &Overrides{Temperature: ptr(0.199)}})
	require.NoError(t, err)
	assert.Equal(t, before, len(clients), "recent parameter sets stay cached")
}

func TestInvokeRetriesOnceThenFails(t *testing.T) {
	var created *fakeClient
	factory := func(p Params) (Client, error) {
		created = &fakeClient{params: p, fail: 5}
		return created, nil
	}
	gw := NewGateway(BackendOpenAI, factory,
		WithLogger(logging.Discard()),
		WithRetryPolicy(retry.Policy{Timeout: time.Second, Retries: 1}))

	usage := NewUsage()
	_, err := gw.Invoke(context.Background(), Request{Role: RoleGenerator, Prompt: "x", Usage: usage})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServiceUnavailable))
	assert.Equal(t, 2, created.calls)
	assert.Zero(t, usage.Total())
}

func TestInvokeEstimatesUsageWhenBackendReportsNone(t *testing.T) {
	factory := func(Params) (Client, error) {
		return clientFunc(func(context.Context, string) (*Completion, error) {
			return &Completion{Text: "two words"}, nil
		}), nil
	}
	gw := NewGateway(BackendLocal, factory, WithLogger(logging.Discard()), WithTokenCounter(wordCounter{}))
	usage := NewUsage()
	_, err := gw.Invoke(context.Background(), Request{Role: RoleGenerator, Prompt: "one two three", Usage: usage})
	require.NoError(t, err)
	assert.Equal(t, int64(5), usage.Total())
	assert.Equal(t, int64(3), usage.Prompt())
	assert.Equal(t, int64(2), usage.Completion())

	var none *Usage
	assert.Zero(t, none.Prompt())
	assert.Zero(t, none.Completion())
}

func TestUsageIsolatedAcrossConcurrentRequests(t *testing.T) {
	clients := map[Params]*fakeClient{}
	gw := newGateway(t, BackendOpenAI, clients)

	const workers = 8
	usages := make([]*Usage, workers)
	var wg sync.WaitGroup
	for i := range workers {
		usages[i] = NewUsage()
		wg.Add(1)
		go func(u *Usage, n int) {
			defer wg.Done()
			for range n {
				_, _ = gw.Invoke(context.Background(), Request{Role: RoleClassifier, Prompt: "q", Usage: u})
			}
		}(usages[i], i+1)
	}
	wg.Wait()

	for i, u := range usages {
		assert.Equal(t, int64(7*(i+1)), u.Total(), "worker %d", i)
	}
}

func TestNilUsageIsSafe(t *testing.T) {
	var u *Usage
	u.Add(1, 2)
	assert.Zero(t, u.Total())
	assert.Zero(t, u.Calls())
}

type clientFunc func(ctx context.Context, prompt string) (*Completion, error)

func (f clientFunc) Complete(ctx context.Context, prompt string) (*Completion, error) {
	return f(ctx, prompt)
}
