package board

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
	"pgregory.net/rapid"

	"projectboard/internal/domain"
)

func ids(projects []domain.Project) []string {
	out := make([]string, len(projects))
	for i, p := range projects {
		out[i] = p.ID
	}
	return out
}

func TestSortByName(t *testing.T) {
	in := []domain.Project{
		{ID: "z", Title: "Zeta"},
		{ID: "a", Title: "alpha"},
		{ID: "b", Title: "Beta"},
		{ID: "em", Title: "Émile"},
		{ID: "ea", Title: "Eagle"},
	}
	got := Sort(in, SortName, language.English)
	assert.Equal(t, []string{"a", "b", "ea", "em", "z"}, ids(got))
	assert.Equal(t, []string{"z", "a", "b", "em", "ea"}, ids(in), "input order untouched")
}

func TestSortByNameCaseTiesAreStable(t *testing.T) {
	in := []domain.Project{
		{ID: "1", Title: "alpha"},
		{ID: "2", Title: "Alpha"},
		{ID: "3", Title: "ALPHA"},
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids(Sort(in, SortName, language.English)))
}

func TestSortByProgressDescending(t *testing.T) {
	in := []domain.Project{
		{ID: "p1", Progress: 50},
		{ID: "p2", Progress: 100},
		{ID: "p3", Progress: 50},
		{ID: "p4", Progress: 0},
	}
	assert.Equal(t, []string{"p2", "p1", "p3", "p4"}, ids(Sort(in, SortProgress, language.English)))
}

func TestSortByDueDate(t *testing.T) {
	in := []domain.Project{
		{ID: "a", DueDate: "2024-09-01"},
		{ID: "bad", DueDate: "someday"},
		{ID: "c", DueDate: "2024-01-01"},
		{ID: "d", DueDate: "2024-09-01"},
	}
	assert.Equal(t, []string{"c", "a", "d", "bad"}, ids(Sort(in, SortDueDate, language.English)))
}

func TestSortUnknownKeyKeepsOrder(t *testing.T) {
	in := []domain.Project{{ID: "b", Progress: 1}, {ID: "a", Progress: 2}}
	assert.Equal(t, []string{"b", "a"}, ids(Sort(in, SortKey("budget"), language.English)))
	assert.Equal(t, []string{"b", "a"}, ids(Sort(in, "", language.English)))
}

func TestSortIsStable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(rt, "n")
		in := make([]domain.Project, n)
		for i := range in {
			in[i] = domain.Project{
				ID:       fmt.Sprintf("%03d", i),
				Progress: rapid.SampledFrom([]int{0, 50, 100}).Draw(rt, fmt.Sprintf("progress%d", i)),
			}
		}
		got := Sort(in, SortProgress, language.English)
		if len(got) != len(in) {
			rt.Fatalf("sort changed length: %d -> %d", len(in), len(got))
		}
		for i := 1; i < len(got); i++ {
			prev, cur := got[i-1], got[i]
			if prev.Progress < cur.Progress {
				rt.Fatalf("not descending at %d: %d then %d", i, prev.Progress, cur.Progress)
			}
			if prev.Progress == cur.Progress && prev.ID > cur.ID {
				rt.Fatalf("equal keys reordered at %d: %s before %s", i, prev.ID, cur.ID)
			}
		}
	})
}
