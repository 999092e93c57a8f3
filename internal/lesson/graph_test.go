package lesson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageIDs(pages []*Page) []int64 {
	out := make([]int64, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.ID)
	}
	return out
}

func TestNewGraphOrdersByLinksNotIDs(t *testing.T) {
	pages := linked(
		Page{ID: 30, Type: TypeTrueFalse},
		Page{ID: 10, Type: TypeShortAnswer},
		Page{ID: 20, Type: TypeEssay},
	)
	g, err := NewGraph([]Page{pages[2], pages[0], pages[1]}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 10, 20}, pageIDs(g.Pages()))
	assert.Equal(t, int64(30), g.Root().ID)
	assert.True(t, g.After(30, 20))
	assert.False(t, g.After(20, 10))

	_, err = g.Page(99)
	require.ErrorIs(t, err, ErrPageNotFound)
}

func TestNewGraphEmptyLesson(t *testing.T) {
	g, err := NewGraph(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, g.Root())
	assert.Zero(t, g.Len())
}

func TestNewGraphRejectsBrokenLinks(t *testing.T) {
	cases := []struct {
		name  string
		pages []Page
	}{
		{"two roots", []Page{{ID: 1}, {ID: 2}}},
		{"no root", []Page{{ID: 1, PrevPageID: 2, NextPageID: 2}, {ID: 2, PrevPageID: 1, NextPageID: 1}}},
		{"dangling next", []Page{{ID: 1, NextPageID: 99}}},
		{"one-sided link", []Page{{ID: 1, NextPageID: 2}, {ID: 2, PrevPageID: 3}, {ID: 3, PrevPageID: 2}}},
		{"loop back", []Page{{ID: 1, NextPageID: 2}, {ID: 2, PrevPageID: 1, NextPageID: 3}, {ID: 3, PrevPageID: 2, NextPageID: 2}}},
		{"unreachable", []Page{{ID: 1}, {ID: 2, PrevPageID: 5}}},
		{"duplicate id", []Page{{ID: 1}, {ID: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGraph(tc.pages, nil)
			require.ErrorIs(t, err, ErrIntegrity)
		})
	}
}

func TestGraphBlocksAndClusters(t *testing.T) {
	g, err := NewGraph(linked(
		Page{ID: 1, Type: TypeBranchTable},
		Page{ID: 2, Type: TypeTrueFalse},
		Page{ID: 3, Type: TypeShortAnswer},
		Page{ID: 4, Type: TypeEndOfBranch},
		Page{ID: 5, Type: TypeCluster},
		Page{ID: 6, Type: TypeEssay},
		Page{ID: 7, Type: TypeEndOfCluster},
		Page{ID: 8, Type: TypeNumerical},
	), []Answer{{ID: 11, PageID: 2}, {ID: 10, PageID: 2}, {ID: 12, PageID: 99}})
	require.NoError(t, err)

	bt, ok := g.BlockOf(3)
	require.True(t, ok)
	assert.Equal(t, int64(1), bt.ID)
	_, ok = g.BlockOf(6)
	assert.False(t, ok)
	assert.Equal(t, []int64{2, 3}, pageIDs(g.BlockMembers(1)))
	assert.Equal(t, []int64{2, 3}, pageIDs(g.SubPagesOf(1, TypeEndOfBranch)))

	c, ok := g.ClusterOf(6)
	require.True(t, ok)
	assert.Equal(t, int64(5), c.ID)
	_, ok = g.ClusterOf(8)
	assert.False(t, ok)

	answers := g.Answers(2)
	require.Len(t, answers, 2)
	assert.Equal(t, int64(10), answers[0].ID)
	assert.Empty(t, g.Answers(99))
}

func TestJumpIsCorrect(t *testing.T) {
	g, err := NewGraph(linked(Page{ID: 1}, Page{ID: 2}, Page{ID: 3}), nil)
	require.NoError(t, err)

	assert.True(t, g.JumpIsCorrect(2, JumpNextPage))
	assert.True(t, g.JumpIsCorrect(2, JumpEndOfLesson))
	assert.True(t, g.JumpIsCorrect(2, JumpClusterJump))
	assert.False(t, g.JumpIsCorrect(2, JumpThisPage))
	assert.False(t, g.JumpIsCorrect(2, JumpPreviousPage))
	assert.False(t, g.JumpIsCorrect(2, JumpRandomBranch))
	assert.True(t, g.JumpIsCorrect(2, 3))
	assert.False(t, g.JumpIsCorrect(2, 1))
	assert.False(t, g.JumpIsCorrect(2, 2))
}
