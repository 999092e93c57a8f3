package lesson

import (
	"cmp"
	"slices"
)

// Graph is a validated, link-ordered view of one lesson's pages and answers.
// It is built per request and never mutated.
type Graph struct {
	order   []*Page
	byID    map[int64]*Page
	index   map[int64]int
	answers map[int64][]Answer
}

// NewGraph validates the page links and orders pages from the root.
// The walk is bounded by the page count; a second root, a cycle, a dangling
// or one-sided link, or an unreachable page is an integrity error.
func NewGraph(pages []Page, answers []Answer) (*Graph, error) {
	g := &Graph{
		byID:    make(map[int64]*Page, len(pages)),
		index:   make(map[int64]int, len(pages)),
		answers: map[int64][]Answer{},
	}
	var root *Page
	for i := range pages {
		p := &pages[i]
		if _, dup := g.byID[p.ID]; dup {
			return nil, integrityf("duplicate page %d", p.ID)
		}
		g.byID[p.ID] = p
		if p.PrevPageID == 0 {
			if root != nil {
				return nil, integrityf("pages %d and %d are both roots", root.ID, p.ID)
			}
			root = p
		}
	}
	for _, a := range answers {
		if _, ok := g.byID[a.PageID]; ok {
			g.answers[a.PageID] = append(g.answers[a.PageID], a)
		}
	}
	for id := range g.answers {
		slices.SortFunc(g.answers[id], func(a, b Answer) int { return cmp.Compare(a.ID, b.ID) })
	}
	if len(pages) == 0 {
		return g, nil
	}
	if root == nil {
		return nil, integrityf("no root page")
	}

	g.order = make([]*Page, 0, len(pages))
	cur := root
	for steps := 0; cur != nil; steps++ {
		if steps >= len(pages) {
			return nil, integrityf("page links form a cycle at page %d", cur.ID)
		}
		if _, seen := g.index[cur.ID]; seen {
			return nil, integrityf("page links form a cycle at page %d", cur.ID)
		}
		g.index[cur.ID] = len(g.order)
		g.order = append(g.order, cur)
		if cur.NextPageID == 0 {
			break
		}
		next, ok := g.byID[cur.NextPageID]
		if !ok {
			return nil, integrityf("page %d links to missing page %d", cur.ID, cur.NextPageID)
		}
		if next.PrevPageID != cur.ID {
			return nil, integrityf("page %d links back to %d, expected %d", next.ID, next.PrevPageID, cur.ID)
		}
		cur = next
	}
	if len(g.order) != len(pages) {
		return nil, integrityf("%d of %d pages are unreachable from the root", len(pages)-len(g.order), len(pages))
	}
	return g, nil
}

// Len is the number of pages.
func (g *Graph) Len() int { return len(g.order) }

// Pages returns the pages in link order.
func (g *Graph) Pages() []*Page { return g.order }

// Root returns the first page, or nil for an empty lesson.
func (g *Graph) Root() *Page {
	if len(g.order) == 0 {
		return nil
	}
	return g.order[0]
}

// Page looks up a page by id.
func (g *Graph) Page(id int64) (*Page, error) {
	p, ok := g.byID[id]
	if !ok {
		return nil, pageNotFound(id)
	}
	return p, nil
}

// Has reports whether id is a page of this lesson.
func (g *Graph) Has(id int64) bool {
	_, ok := g.byID[id]
	return ok
}

// Answers returns the answers of a page ordered by id.
func (g *Graph) Answers(pageID int64) []Answer { return g.answers[pageID] }

// Answer finds one answer of a page.
func (g *Graph) Answer(pageID, answerID int64) (Answer, bool) {
	for _, a := range g.answers[pageID] {
		if a.ID == answerID {
			return a, true
		}
	}
	return Answer{}, false
}

// After reports whether page b comes after page a in link order.
func (g *Graph) After(a, b int64) bool {
	ia, okA := g.index[a]
	ib, okB := g.index[b]
	return okA && okB && ib > ia
}

// SubPagesOf returns the pages following start up to, not including, the
// first page whose type is in stop.
func (g *Graph) SubPagesOf(start int64, stop ...PageType) []*Page {
	i, ok := g.index[start]
	if !ok {
		return nil
	}
	var out []*Page
	for _, p := range g.order[i+1:] {
		if slices.Contains(stop, p.Type) {
			break
		}
		out = append(out, p)
	}
	return out
}

// Enclosing walks back from id, excluding id itself, and returns the first
// page of type start. Meeting a page of an end type first means id is not
// enclosed.
func (g *Graph) Enclosing(id int64, start PageType, ends ...PageType) (*Page, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	for j := i - 1; j >= 0; j-- {
		p := g.order[j]
		if p.Type == start {
			return p, true
		}
		if slices.Contains(ends, p.Type) {
			return nil, false
		}
	}
	return nil, false
}

// BlockOf returns the branch table whose block contains id, or id itself
// when it is a branch table.
func (g *Graph) BlockOf(id int64) (*Page, bool) {
	if p, ok := g.byID[id]; ok && p.Type == TypeBranchTable {
		return p, true
	}
	return g.Enclosing(id, TypeBranchTable, TypeEndOfBranch, TypeCluster, TypeEndOfCluster)
}

// ClusterOf returns the cluster containing id, or id itself when it is one.
func (g *Graph) ClusterOf(id int64) (*Page, bool) {
	if p, ok := g.byID[id]; ok && p.Type == TypeCluster {
		return p, true
	}
	return g.Enclosing(id, TypeCluster, TypeEndOfCluster)
}

// BlockMembers lists the pages of a branch table's block.
func (g *Graph) BlockMembers(branchTable int64) []*Page {
	return g.SubPagesOf(branchTable, TypeBranchTable, TypeEndOfBranch, TypeEndOfCluster)
}

// JumpIsCorrect reports whether taking jump from page counts as a correct
// answer under binary scoring.
func (g *Graph) JumpIsCorrect(pageID, jump int64) bool {
	switch jump {
	case JumpThisPage, JumpPreviousPage, JumpRandomBranch:
		return false
	case JumpNextPage, JumpUnseenBranchPage, JumpRandomPage, JumpClusterJump, JumpEndOfLesson:
		return true
	}
	if jump > 0 {
		return g.After(pageID, jump)
	}
	return false
}
