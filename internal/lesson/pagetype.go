package lesson

import "github.com/mind-engage/mindengage-lessons/internal/grading"

// pageKind is the behavior attached to one page type.
type pageKind struct {
	name       string
	question   bool
	manual     bool   // answers need a human grade
	structural bool   // never rendered; redirects on view
	grader     string // grading strategy key for question pages
}

var kinds = map[PageType]pageKind{
	TypeShortAnswer:  {name: "shortanswer", question: true, grader: grading.KindShortAnswer},
	TypeTrueFalse:    {name: "truefalse", question: true, grader: grading.KindTrueFalse},
	TypeMultiChoice:  {name: "multichoice", question: true, grader: grading.KindMultiChoice},
	TypeNumerical:    {name: "numerical", question: true, grader: grading.KindNumerical},
	TypeEssay:        {name: "essay", question: true, manual: true, grader: grading.KindEssay},
	TypeBranchTable:  {name: "branchtable"},
	TypeEndOfBranch:  {name: "endofbranch", structural: true},
	TypeCluster:      {name: "cluster", structural: true},
	TypeEndOfCluster: {name: "endofcluster", structural: true},
}

func (t PageType) String() string {
	if k, ok := kinds[t]; ok {
		return k.name
	}
	return "unknown"
}

// Valid reports whether t is a known page type.
func (t PageType) Valid() bool {
	_, ok := kinds[t]
	return ok
}

// IsQuestion reports whether pages of this type take graded answers.
func (t PageType) IsQuestion() bool { return kinds[t].question }

// IsStructural reports whether pages of this type redirect instead of rendering.
func (t PageType) IsStructural() bool { return kinds[t].structural }

// NeedsManualGrade reports whether answers wait for a grader.
func (t PageType) NeedsManualGrade() bool { return kinds[t].manual }

// onView runs the view rule of p's type. Non-structural pages never redirect.
// The rules resolve jumps, which consult kinds, so they are dispatched here
// rather than stored in the table.
func onView(r *Resolver, p *Page, canManage bool) (int64, bool, error) {
	switch p.Type {
	case TypeEndOfBranch:
		return viewEndOfBranch(r, p, canManage)
	case TypeCluster:
		return viewCluster(r, p, canManage)
	case TypeEndOfCluster:
		return viewEndOfCluster(r, p, canManage)
	default:
		return 0, false, nil
	}
}

func firstJump(r *Resolver, p *Page, fallback int64) int64 {
	if answers := r.Graph.Answers(p.ID); len(answers) > 0 {
		return answers[0].JumpTo
	}
	return fallback
}

func viewCluster(r *Resolver, p *Page, canManage bool) (int64, bool, error) {
	jump := firstJump(r, p, JumpClusterJump)
	if jump == JumpThisPage {
		jump = JumpNextPage
	}
	target, err := r.Resolve(jump, p, canManage)
	return target, true, err
}

func viewEndOfBranch(r *Resolver, p *Page, canManage bool) (int64, bool, error) {
	jump := firstJump(r, p, JumpNextPage)
	if jump == JumpThisPage {
		jump = JumpNextPage
	}
	target, err := r.Resolve(jump, p, canManage)
	return target, true, err
}

func viewEndOfCluster(_ *Resolver, p *Page, _ bool) (int64, bool, error) {
	if p.NextPageID == 0 {
		return JumpEndOfLesson, true, nil
	}
	return p.NextPageID, true, nil
}
