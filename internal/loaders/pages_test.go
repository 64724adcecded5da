package loaders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPageRange(t *testing.T) {
	testCases := []struct {
		first, last int
		expected    []int
	}{
		{first: 2, last: 4, expected: []int{2, 3, 4}},
		{first: 2, last: 2, expected: []int{2}},
		{first: 2, last: 1, expected: nil},
		{first: 2, last: 0, expected: nil},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d..%d", tc.first, tc.last), func(t *testing.T) {
			if got := pageRange(tc.first, tc.last); !slices.Equal(got, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestWalkPagesSerialKeepsPageOrder(t *testing.T) {
	var processed []int
	// Later pages answer first.
	fetch := func(_ context.Context, page int) (int, error) {
		time.Sleep(time.Duration(6-page) * 5 * time.Millisecond)
		return page * 10, nil
	}
	process := func(_ context.Context, page int, data int) error {
		if data != page*10 {
			t.Errorf("Expected data %d for page %d, got %d", page*10, page, data)
		}
		processed = append(processed, page)
		return nil
	}

	err := walkPages(context.Background(), newPager(4, false, 0), pageRange(2, 5), fetch, process)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !slices.Equal(processed, []int{2, 3, 4, 5}) {
		t.Errorf("Expected pages processed in order, got %v", processed)
	}
}

func TestWalkPagesSerialStopsAtFirstFailure(t *testing.T) {
	testCases := []struct {
		name          string
		fetchFails    int
		processFails  int
		expectPages   []int
		errorContains string
	}{
		{name: "Fetch failure", fetchFails: 3, expectPages: []int{2}, errorContains: "page 3"},
		{name: "Process failure", processFails: 2, expectPages: nil, errorContains: "process 2"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var processed []int
			fetch := func(_ context.Context, page int) (int, error) {
				if page == tc.fetchFails {
					return 0, errors.New("fetch failed")
				}
				return page, nil
			}
			process := func(_ context.Context, page int, _ int) error {
				if page == tc.processFails {
					return fmt.Errorf("process %d", page)
				}
				processed = append(processed, page)
				return nil
			}

			err := walkPages(context.Background(), newPager(2, false, 0), pageRange(2, 6), fetch, process)
			if err == nil || !strings.Contains(err.Error(), tc.errorContains) {
				t.Fatalf("Expected error containing %q, got %v", tc.errorContains, err)
			}
			if !slices.Equal(processed, tc.expectPages) {
				t.Errorf("Expected processed %v, got %v", tc.expectPages, processed)
			}
		})
	}
}

func TestWalkPagesConcurrentCollectsErrors(t *testing.T) {
	var mu sync.Mutex
	var processed []int
	fetch := func(_ context.Context, page int) (int, error) {
		if page == 3 || page == 5 {
			return 0, errors.New("unavailable")
		}
		return page, nil
	}
	process := func(_ context.Context, page int, _ int) error {
		mu.Lock()
		processed = append(processed, page)
		mu.Unlock()
		return nil
	}

	err := walkPages(context.Background(), newPager(3, true, 0), pageRange(2, 7), fetch, process)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	for _, want := range []string{"page 3", "page 5"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %q, got %q", want, err.Error())
		}
	}
	slices.Sort(processed)
	if !slices.Equal(processed, []int{2, 4, 6, 7}) {
		t.Errorf("Expected the other pages processed, got %v", processed)
	}
}

func TestPagerThrottle(t *testing.T) {
	const delay = 30 * time.Millisecond
	fetch := func(_ context.Context, page int) (int, error) { return page, nil }
	process := func(context.Context, int, int) error { return nil }

	for _, concurrent := range []bool{false, true} {
		t.Run(fmt.Sprintf("concurrent=%v", concurrent), func(t *testing.T) {
			start := time.Now()
			if err := walkPages(context.Background(), newPager(4, concurrent, delay), pageRange(2, 4), fetch, process); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			// First submission is immediate; the other two wait one delay each.
			if elapsed := time.Since(start); elapsed < 2*delay-5*time.Millisecond {
				t.Errorf("Expected at least %v between submissions, took %v", 2*delay, elapsed)
			}
		})
	}
}

func TestPagerThrottleHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(_ context.Context, page int) (int, error) { return page, nil }
	process := func(_ context.Context, page int, _ int) error {
		if page == 2 {
			cancel()
		}
		return nil
	}

	err := walkPages(ctx, newPager(1, false, time.Hour), pageRange(2, 4), fetch, process)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
