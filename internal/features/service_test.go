package features

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	features map[string]Feature
	ensures  int
}

func newMockRepo() *mockRepo {
	return &mockRepo{features: make(map[string]Feature)}
}

func (m *mockRepo) List(ctx context.Context) ([]Feature, error) {
	out := make([]Feature, 0, len(m.features))
	for _, f := range m.features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *mockRepo) Ensure(ctx context.Context, f Feature) error {
	m.ensures++
	if _, ok := m.features[f.Key]; !ok {
		m.features[f.Key] = f
	}
	return nil
}

func TestEnsureCatalogSeedsAllFeatures(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.EnsureCatalog(ctx))
	feats, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, feats, len(Catalog()))

	// Re-seeding never duplicates or rewrites.
	require.NoError(t, svc.EnsureCatalog(ctx))
	feats, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, feats, len(Catalog()))
}

func TestListKeysStableOrder(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()
	require.NoError(t, svc.EnsureCatalog(ctx))

	keys, err := svc.ListKeys(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, keys)
	assert.True(t, sort.StringsAreSorted(keys))
}

func TestCatalogNames(t *testing.T) {
	for _, f := range Catalog() {
		assert.NotEmpty(t, f.Name, "key %s", f.Key)
		assert.NotEmpty(t, f.Category, "key %s", f.Key)
	}
}

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"metrics.gross_margin.view": "Gross Margin",
		"metrics.mrr.view":          "Mrr",
		"alfred.chat":               "Chat",
		"simple":                    "Simple",
	}
	for key, want := range cases {
		assert.Equal(t, want, displayName(key), "key %s", key)
	}
}

func TestCategoryKeys(t *testing.T) {
	keys := CategoryKeys(CategoryCustomer)
	assert.Contains(t, keys, "metrics.ltv.view")
	assert.Contains(t, keys, "metrics.qvc.view")
	assert.NotContains(t, keys, "metrics.mrr.view")
}

func TestMetricViewKey(t *testing.T) {
	assert.Equal(t, "metrics.mrr.view", MetricViewKey("MRR"))
	assert.Equal(t, "metrics.ltv.view", MetricViewKey("ltv"))
}
