package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

func TestDiffFirstRunEverythingIsNew(t *testing.T) {
	t.Parallel()

	links := map[string][]string{"L1": {"a", "b"}, "L2": {"c"}}
	require.Equal(t, links, Diff(links, nil))
	require.Equal(t, links, Diff(links, alert.LinkCache{}))
}

func TestDiffSteadyState(t *testing.T) {
	t.Parallel()

	cached := alert.LinkCache{"L1": {"B", "A"}}
	got := Diff(map[string][]string{"L1": {"A", "B", "C"}}, cached)
	require.Equal(t, map[string][]string{"L1": {"C"}}, got)
}

func TestDiffNothingNew(t *testing.T) {
	t.Parallel()

	got := Diff(map[string][]string{"L1": {"A"}}, alert.LinkCache{"L1": {"A"}})
	require.Empty(t, got["L1"])
}

func TestDiffCacheIsPerLabel(t *testing.T) {
	t.Parallel()

	got := Diff(map[string][]string{"L1": {"A"}, "L2": {"A"}}, alert.LinkCache{"L1": {"A"}})
	require.Empty(t, got["L1"])
	require.Equal(t, []string{"A"}, got["L2"])
}

func TestFilterByNoveltyDropsSeenResults(t *testing.T) {
	t.Parallel()

	seen := result("L1", "b1", 1)
	fresh := result("L1", "b1", 2)
	sharedOtherLabel := result("L2", "b1", 1)
	byWebhook := map[string][]alert.MatchResult{
		"w1": {seen, fresh},
		"w2": {seen, sharedOtherLabel},
		"w3": {seen},
	}
	newLinks := map[string][]string{
		"L1": {fresh.Link},
		"L2": {sharedOtherLabel.Link},
	}

	got := FilterByNovelty(byWebhook, newLinks)
	require.Equal(t, map[string][]alert.MatchResult{
		"w1": {fresh},
		"w2": {sharedOtherLabel},
	}, got)
	for _, results := range got {
		for _, r := range results {
			require.Contains(t, newLinks[r.Label], r.Link)
		}
	}
}

type recordingStore struct {
	state  alert.LinkCache
	writes int
	err    error
}

func (s *recordingStore) ReadLinkCache(context.Context) (alert.LinkCache, error) {
	return s.state, nil
}

func (s *recordingStore) WriteLinkCache(_ context.Context, links map[string][]string) error {
	if s.err != nil {
		return s.err
	}
	s.writes++
	if s.state == nil {
		s.state = alert.LinkCache{}
	}
	for label, l := range links {
		s.state[label] = append([]string(nil), l...)
	}
	return nil
}

func TestPersistReplacesPresentLabelsOnly(t *testing.T) {
	t.Parallel()

	store := &recordingStore{state: alert.LinkCache{"L1": {"A", "B"}, "L2": {"X"}}}
	require.NoError(t, Persist(context.Background(), store, map[string][]string{"L1": {"C"}}))
	require.Equal(t, alert.LinkCache{"L1": {"C"}, "L2": {"X"}}, store.state)
}

func TestPersistSkipsEmptyWrite(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	require.NoError(t, Persist(context.Background(), store, nil))
	require.Zero(t, store.writes)
}

func TestPersistWrapsStoreError(t *testing.T) {
	t.Parallel()

	store := &recordingStore{err: errors.New("disk full")}
	err := Persist(context.Background(), store, map[string][]string{"L1": {"A"}})
	require.ErrorIs(t, err, alert.ErrPersistence)
	require.ErrorContains(t, err, "disk full")
}

func TestMergeDegradedKeepsHistoryForSkippedBoards(t *testing.T) {
	t.Parallel()

	table := alert.RoutingTable{
		"b1": {"foo": {"L1"}},
		"b2": {"foo": {"L1"}, "bar": {"L2"}},
	}
	cached := alert.LinkCache{"L1": {"old-b2", "cur"}, "L2": {"old-l2"}, "L3": {"x"}}
	links := map[string][]string{"L1": {"cur", "new-b1"}, "L3": {"y"}}

	got := MergeDegraded(links, cached, table, []string{"b2"})
	require.Equal(t, map[string][]string{
		"L1": {"cur", "new-b1", "old-b2"},
		"L2": {"old-l2"},
		"L3": {"y"},
	}, got)

	require.Equal(t, links, MergeDegraded(links, cached, table, nil))
}
