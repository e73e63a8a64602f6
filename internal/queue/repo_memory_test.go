package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/ringdove/outcall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimNext_FIFO(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	contacts := []domain.Contact{
		{Name: "Alice", Number: "+15550000001"},
		{Name: "Bob", Number: "+15550000002"},
		{Name: "Carol", Number: "+15550000003"},
	}
	n, err := repo.Enqueue(ctx, "t1", "asst-1", contacts)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, want := range contacts {
		item, err := repo.ClaimNext(ctx, "t1", "asst-1")
		require.NoError(t, err)
		assert.Equal(t, want.Name, item.Name)
		assert.Equal(t, StatusPendingInitiation, item.Status)
		assert.NotEmpty(t, item.ID)
	}

	_, err = repo.ClaimNext(ctx, "t1", "asst-1")
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestClaimNext_IsolatedPerTenantAgent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, "t1", "asst-1", []domain.Contact{{Name: "Alice", Number: "+1"}})
	require.NoError(t, err)

	_, err = repo.ClaimNext(ctx, "t1", "asst-2")
	assert.ErrorIs(t, err, ErrQueueEmpty)

	_, err = repo.ClaimNext(ctx, "t2", "asst-1")
	assert.ErrorIs(t, err, ErrQueueEmpty)

	_, err = repo.ClaimNext(ctx, "t1", "asst-1")
	assert.NoError(t, err)
}

// Concurrent claimers on a backlog of N items must each receive a distinct
// item exactly once, and the (N+1)th claim must come back empty.
func TestClaimNext_Linearizable(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	const n = 50
	contacts := make([]domain.Contact, n)
	for i := range contacts {
		contacts[i] = domain.Contact{Name: fmt.Sprintf("c%d", i), Number: fmt.Sprintf("+1555%04d", i)}
	}
	_, err := repo.Enqueue(ctx, "t1", "asst-1", contacts)
	require.NoError(t, err)

	var wg sync.WaitGroup
	claimed := make(chan *Item, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, err := repo.ClaimNext(ctx, "t1", "asst-1")
			if err == nil {
				claimed <- item
			}
		}()
	}
	wg.Wait()
	close(claimed)

	seen := make(map[string]bool)
	count := 0
	for item := range claimed {
		assert.False(t, seen[item.Name], "item %s claimed twice", item.Name)
		seen[item.Name] = true
		count++
	}
	assert.Equal(t, n, count)

	_, err = repo.ClaimNext(ctx, "t1", "asst-1")
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRecordOutcome(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, "t1", "asst-1", []domain.Contact{{Name: "Alice", Number: "+1"}})
	require.NoError(t, err)
	item, err := repo.ClaimNext(ctx, "t1", "asst-1")
	require.NoError(t, err)

	t.Run("transitions to terminal status with reason", func(t *testing.T) {
		err := repo.RecordOutcome(ctx, item.ID, StatusFailedToInitiate, "invalid number")
		require.NoError(t, err)

		archived, ok := repo.ArchivedItem(item.ID)
		require.True(t, ok)
		assert.Equal(t, StatusFailedToInitiate, archived.Status)
		assert.Equal(t, "invalid number", archived.FailReason)
		assert.NotNil(t, archived.CompletedAt)
	})

	t.Run("second terminal write is rejected, row unchanged", func(t *testing.T) {
		err := repo.RecordOutcome(ctx, item.ID, StatusInitiated, "")
		assert.ErrorIs(t, err, ErrOutcomeAlreadyRecorded)

		archived, ok := repo.ArchivedItem(item.ID)
		require.True(t, ok)
		assert.Equal(t, StatusFailedToInitiate, archived.Status)
	})

	t.Run("unknown item", func(t *testing.T) {
		err := repo.RecordOutcome(ctx, "no-such-id", StatusInitiated, "")
		assert.ErrorIs(t, err, ErrItemNotFound)
	})
}

// Two identical contacts claimed back to back must resolve to different
// archive entries, each with its own outcome.
func TestRecordOutcome_DuplicateContacts(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	dup := domain.Contact{Name: "Alice", Number: "+15550000001"}
	_, err := repo.Enqueue(ctx, "t1", "asst-1", []domain.Contact{dup, dup})
	require.NoError(t, err)

	first, err := repo.ClaimNext(ctx, "t1", "asst-1")
	require.NoError(t, err)
	second, err := repo.ClaimNext(ctx, "t1", "asst-1")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	require.NoError(t, repo.RecordOutcome(ctx, first.ID, StatusInitiated, ""))
	require.NoError(t, repo.RecordOutcome(ctx, second.ID, StatusFailedToInitiate, "busy"))

	archived := repo.ArchivedByNumber(dup.Number)
	require.Len(t, archived, 2)

	statuses := map[Status]int{}
	for _, item := range archived {
		statuses[item.Status]++
	}
	assert.Equal(t, 1, statuses[StatusInitiated])
	assert.Equal(t, 1, statuses[StatusFailedToInitiate])
}

func TestStats(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, "t1", "asst-1", []domain.Contact{
		{Name: "A", Number: "+1"},
		{Name: "B", Number: "+2"},
		{Name: "C", Number: "+3"},
	})
	require.NoError(t, err)

	a, err := repo.ClaimNext(ctx, "t1", "asst-1")
	require.NoError(t, err)
	b, err := repo.ClaimNext(ctx, "t1", "asst-1")
	require.NoError(t, err)
	require.NoError(t, repo.RecordOutcome(ctx, a.ID, StatusInitiated, ""))
	require.NoError(t, repo.RecordOutcome(ctx, b.ID, StatusFailedToInitiate, "rejected"))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Backlog)
	assert.Equal(t, int64(0), stats.PendingInitiation)
	assert.Equal(t, int64(1), stats.Initiated)
	assert.Equal(t, int64(1), stats.FailedToInitiate)
}
