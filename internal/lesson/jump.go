package lesson

import "math/rand/v2"

// History is one user's records for the current retry.
type History struct {
	Attempts []Attempt
	Branches []Branch
}

func (h History) answered() map[int64]bool {
	out := make(map[int64]bool, len(h.Attempts))
	for _, a := range h.Attempts {
		out[a.PageID] = true
	}
	return out
}

func (h History) answeredCorrectly() map[int64]bool {
	out := map[int64]bool{}
	for _, a := range h.Attempts {
		if a.Correct {
			out[a.PageID] = true
		}
	}
	return out
}

func (h History) viewed() map[int64]bool {
	out := make(map[int64]bool, len(h.Branches))
	for _, b := range h.Branches {
		out[b.PageID] = true
	}
	return out
}

// seen treats question pages as seen once answered and other pages once viewed.
func (h History) seen(p *Page, answered, viewed map[int64]bool) bool {
	if p.Type.IsQuestion() {
		return answered[p.ID]
	}
	return viewed[p.ID]
}

// Resolver turns jump values into concrete page ids for one user and retry.
type Resolver struct {
	Graph   *Graph
	Lesson  Lesson
	History History
	// Intn returns a uniform int in [0, n). Defaults to math/rand/v2.
	Intn func(n int) int
}

func NewResolver(g *Graph, l Lesson, h History) *Resolver {
	return &Resolver{Graph: g, Lesson: l, History: h, Intn: rand.IntN}
}

func (r *Resolver) pick(pages []*Page) *Page {
	intn := r.Intn
	if intn == nil {
		intn = rand.IntN
	}
	return pages[intn(len(pages))]
}

// Resolve maps jump, taken from page from, to a page id or JumpEndOfLesson.
// Managers get NEXT_PAGE in place of unseen-page and cluster jumps so their
// preview is stable.
func (r *Resolver) Resolve(jump int64, from *Page, canManage bool) (int64, error) {
	if jump > 0 {
		if !r.Graph.Has(jump) {
			return 0, pageNotFound(jump)
		}
		return jump, nil
	}
	switch jump {
	case JumpThisPage:
		return from.ID, nil
	case JumpNextPage:
		return r.next(from), nil
	case JumpEndOfLesson:
		return JumpEndOfLesson, nil
	case JumpPreviousPage:
		if from.PrevPageID == 0 {
			return from.ID, nil
		}
		return from.PrevPageID, nil
	case JumpUnseenBranchPage:
		if canManage {
			return r.next(from), nil
		}
		return r.unseenInBranch(from), nil
	case JumpRandomPage:
		return r.randomInBranch(from), nil
	case JumpRandomBranch:
		return r.randomBranch(from), nil
	case JumpClusterJump:
		if canManage {
			return r.next(from), nil
		}
		return r.clusterJump(from), nil
	}
	return 0, integrityf("unknown jump %d on page %d", jump, from.ID)
}

// next follows nextPageId, or picks a flash card after a question when the
// lesson is in flash-card mode.
func (r *Resolver) next(from *Page) int64 {
	if from.Type.IsQuestion() && r.Lesson.NextPageDefault != NextPageNormal {
		if id, ok := r.flashCard(); ok {
			return id
		}
	}
	if from.NextPageID == 0 {
		return JumpEndOfLesson
	}
	return from.NextPageID
}

func (r *Resolver) flashCard() (int64, bool) {
	var done map[int64]bool
	switch r.Lesson.NextPageDefault {
	case NextPageUnseen:
		done = r.History.answered()
	case NextPageUnanswered:
		done = r.History.answeredCorrectly()
	default:
		return 0, false
	}
	var candidates []*Page
	for _, p := range r.Graph.Pages() {
		if p.Type.IsQuestion() && !done[p.ID] {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	if r.Lesson.MaxPages > 0 && len(r.History.Attempts) >= r.Lesson.MaxPages {
		return JumpEndOfLesson, true
	}
	return r.pick(candidates).ID, true
}

func (r *Resolver) unseenInBranch(from *Page) int64 {
	bt, ok := r.Graph.BlockOf(from.ID)
	if !ok {
		return r.next(from)
	}
	answered := r.History.answered()
	var unseen []*Page
	for _, p := range r.Graph.BlockMembers(bt.ID) {
		if p.Type.IsQuestion() && !answered[p.ID] {
			unseen = append(unseen, p)
		}
	}
	if len(unseen) == 0 {
		return r.next(from)
	}
	return r.pick(unseen).ID
}

func (r *Resolver) randomInBranch(from *Page) int64 {
	bt, ok := r.Graph.BlockOf(from.ID)
	if !ok {
		return r.next(from)
	}
	var siblings []*Page
	for _, p := range r.Graph.BlockMembers(bt.ID) {
		if p.ID != from.ID {
			siblings = append(siblings, p)
		}
	}
	if len(siblings) == 0 {
		return r.next(from)
	}
	return r.pick(siblings).ID
}

// randomBranch picks an unvisited branch table anywhere in from's cluster,
// or anywhere in the lesson when from is outside a cluster.
func (r *Resolver) randomBranch(from *Page) int64 {
	viewed := r.History.viewed()
	scope := r.Graph.Pages()
	if cluster, ok := r.Graph.ClusterOf(from.ID); ok {
		scope = r.Graph.SubPagesOf(cluster.ID, TypeEndOfCluster)
	}
	var candidates []*Page
	for _, p := range scope {
		if p.Type == TypeBranchTable && !viewed[p.ID] {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return r.next(from)
	}
	return r.pick(candidates).ID
}

// clusterJump picks an unseen member of the enclosing cluster. Branch tables
// count as one member, unseen while none of their pages are; choosing one
// lands on a random page of its block. With nothing left the cluster exits
// through its end-of-cluster page.
func (r *Resolver) clusterJump(from *Page) int64 {
	cluster, ok := r.Graph.ClusterOf(from.ID)
	if !ok {
		return r.next(from)
	}
	answered, viewed := r.History.answered(), r.History.viewed()

	var unseen []*Page
	for _, m := range r.Graph.SubPagesOf(cluster.ID, TypeEndOfCluster) {
		if m.Type == TypeEndOfBranch {
			continue
		}
		if _, nested := r.Graph.Enclosing(m.ID, TypeBranchTable, TypeEndOfBranch, TypeCluster); nested {
			continue
		}
		if m.Type == TypeBranchTable {
			block := r.Graph.BlockMembers(m.ID)
			if len(block) > 0 {
				anySeen := false
				for _, p := range block {
					if r.History.seen(p, answered, viewed) {
						anySeen = true
						break
					}
				}
				if !anySeen {
					unseen = append(unseen, m)
				}
				continue
			}
		}
		if !r.History.seen(m, answered, viewed) {
			unseen = append(unseen, m)
		}
	}

	if len(unseen) > 0 {
		chosen := r.pick(unseen)
		if chosen.Type == TypeBranchTable {
			if block := r.Graph.BlockMembers(chosen.ID); len(block) > 0 {
				return r.pick(block).ID
			}
		}
		return chosen.ID
	}
	return r.clusterExit(cluster)
}

func (r *Resolver) clusterExit(cluster *Page) int64 {
	var end *Page
	for _, p := range r.Graph.Pages()[r.Graph.index[cluster.ID]+1:] {
		if p.Type == TypeEndOfCluster {
			end = p
			break
		}
	}
	if end == nil {
		return JumpEndOfLesson
	}
	jump := firstJump(r, end, JumpNextPage)
	switch {
	case jump > 0 && r.Graph.Has(jump):
		return jump
	case jump == JumpEndOfLesson:
		return JumpEndOfLesson
	}
	if end.NextPageID == 0 {
		return JumpEndOfLesson
	}
	return end.NextPageID
}
