package jobs

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestQueueRunsInPostOrder(t *testing.T) {
	t.Parallel()

	queue := NewQueue()

	var ran []int

	for i := 1; i <= 3; i++ {
		queue.Post(func() { ran = append(ran, i) })
	}

	if ran != nil {
		t.Fatalf("Post ran callbacks inline: %v", ran)
	}

	queue.Drain()

	if diff := cmp.Diff([]int{1, 2, 3}, ran); diff != "" {
		t.Errorf("execution order mismatch (-want +got):\n%s", diff)
	}
}

func TestQueueDrainIncludesReposts(t *testing.T) {
	t.Parallel()

	queue := NewQueue()

	var ran []string

	queue.Post(func() {
		ran = append(ran, "outer")
		queue.Post(func() { ran = append(ran, "inner") })
	})

	queue.Drain()

	if diff := cmp.Diff([]string{"outer", "inner"}, ran); diff != "" {
		t.Errorf("execution order mismatch (-want +got):\n%s", diff)
	}

	if !queue.Empty() {
		t.Error("queue should be empty after drain")
	}
}

func TestQueuePostIsSafeFromOtherGoroutines(t *testing.T) {
	t.Parallel()

	queue := NewQueue()

	const posters, perPoster = 8, 100

	var wg sync.WaitGroup

	var count int

	for range posters {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range perPoster {
				queue.Post(func() { count++ })
			}
		}()
	}

	wg.Wait()
	queue.Drain()

	if count != posters*perPoster {
		t.Errorf("got %d callbacks, want %d", count, posters*perPoster)
	}
}
