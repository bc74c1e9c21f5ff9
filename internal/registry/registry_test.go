package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdstore/internal/domain"
)

func schema(id domain.ID, name string) *domain.Target {
	return domain.NewTarget(domain.KindSchema, id, 0, name, "", domain.Location{})
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New()
	s := schema(4096, "sales")

	require.NoError(t, r.Register(s))
	assert.True(t, r.Contains(4096))
	got, ok := r.Get(4096)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_DuplicateLeavesFirstTarget(t *testing.T) {
	r := New()
	first := schema(7, "first")
	second := schema(7, "second")

	require.NoError(t, r.Register(first))
	err := r.Register(second)
	require.Error(t, err)
	var dup *domain.DuplicateIdentifierError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, domain.ID(7), dup.ID)

	got, ok := r.Get(7)
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Unregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(schema(1, "a")))

	require.NoError(t, r.Unregister(1))
	assert.False(t, r.Contains(1))

	err := r.Unregister(1)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRegistry_IDsAndMissing(t *testing.T) {
	r := New()
	for _, id := range []domain.ID{30, 10, 20} {
		require.NoError(t, r.Register(schema(id, "")))
	}
	assert.Equal(t, []domain.ID{10, 20, 30}, r.IDs())
	assert.Equal(t, []domain.ID{5, 40}, r.Missing([]domain.ID{5, 10, 40, 30}))
	assert.Empty(t, r.Missing([]domain.ID{10, 20}))
}

func TestRegistry_ConcurrentRegisterSameID(t *testing.T) {
	r := New()
	const workers = 32

	var wg sync.WaitGroup
	errs := make([]error, workers)
	targets := make([]*domain.Target, workers)
	for i := 0; i < workers; i++ {
		targets[i] = schema(99, "racer")
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Register(targets[i])
		}(i)
	}
	wg.Wait()

	winners := 0
	var winner *domain.Target
	for i, err := range errs {
		if err == nil {
			winners++
			winner = targets[i]
			continue
		}
		var dup *domain.DuplicateIdentifierError
		assert.ErrorAs(t, err, &dup)
	}
	require.Equal(t, 1, winners)
	got, _ := r.Get(99)
	assert.Same(t, winner, got)
}
