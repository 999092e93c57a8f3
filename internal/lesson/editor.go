package lesson

import (
	"context"
	"log/slog"
	"slices"

	"github.com/pkg/errors"
)

// LessonInput carries lesson settings plus an optional plain-text password.
// A nil Password leaves the stored hash alone; an empty one clears it.
type LessonInput struct {
	Lesson
	Password *string `json:"password,omitempty"`
}

func (e *Engine) CreateLesson(ctx context.Context, in LessonInput) (Lesson, error) {
	l := in.Lesson
	l.PasswordHash = ""
	if in.Password != nil {
		h, err := HashPassword(*in.Password)
		if err != nil {
			return Lesson{}, err
		}
		l.PasswordHash = h
	}
	if !validNextPageMode(l.NextPageDefault) || l.MaxAttempts < 0 || l.MaxPages < 0 || l.TimeLimit < 0 {
		return Lesson{}, errors.WithStack(ErrInvalidLesson)
	}
	out, err := e.store.CreateLesson(ctx, l)
	if err != nil {
		return Lesson{}, err
	}
	e.log.InfoContext(ctx, "lesson created", slog.Int64("lesson_id", out.ID))
	return out, nil
}

func (e *Engine) UpdateLesson(ctx context.Context, in LessonInput) (Lesson, error) {
	cur, err := e.store.GetLesson(ctx, in.ID)
	if err != nil {
		return Lesson{}, err
	}
	l := in.Lesson
	l.PasswordHash = cur.PasswordHash
	if in.Password != nil {
		if l.PasswordHash, err = HashPassword(*in.Password); err != nil {
			return Lesson{}, err
		}
	}
	if !validNextPageMode(l.NextPageDefault) || l.MaxAttempts < 0 || l.MaxPages < 0 || l.TimeLimit < 0 {
		return Lesson{}, errors.WithStack(ErrInvalidLesson)
	}
	if err := e.store.UpdateLesson(ctx, l); err != nil {
		return Lesson{}, err
	}
	return l, nil
}

func (e *Engine) GetLesson(ctx context.Context, id int64) (Lesson, error) {
	return e.store.GetLesson(ctx, id)
}

func validNextPageMode(m NextPageMode) bool {
	return m == NextPageNormal || m == NextPageUnseen || m == NextPageUnanswered
}

// PageWithAnswers is a page and its answers as returned to editors.
type PageWithAnswers struct {
	Page
	Answers []Answer `json:"answers"`
}

// LoadAllPages returns the lesson's pages in link order.
func (e *Engine) LoadAllPages(ctx context.Context, lessonID int64) ([]PageWithAnswers, error) {
	if _, err := e.store.GetLesson(ctx, lessonID); err != nil {
		return nil, err
	}
	g, err := loadGraph(ctx, e.store, lessonID)
	if err != nil {
		return nil, err
	}
	out := make([]PageWithAnswers, 0, g.Len())
	for _, p := range g.Pages() {
		out = append(out, PageWithAnswers{Page: *p, Answers: g.Answers(p.ID)})
	}
	return out, nil
}

// LoadPage returns one page of the lesson.
func (e *Engine) LoadPage(ctx context.Context, lessonID, pageID int64) (PageWithAnswers, error) {
	p, err := e.store.GetPage(ctx, pageID)
	if err != nil {
		return PageWithAnswers{}, err
	}
	if p.LessonID != lessonID {
		return PageWithAnswers{}, pageNotFound(pageID)
	}
	answers, err := e.store.ListPageAnswers(ctx, pageID)
	if err != nil {
		return PageWithAnswers{}, err
	}
	return PageWithAnswers{Page: p, Answers: answers}, nil
}

// SubPagesOf lists the pages after start up to the first page of a stop type.
func (e *Engine) SubPagesOf(ctx context.Context, lessonID, start int64, stop ...PageType) ([]Page, error) {
	g, err := loadGraph(ctx, e.store, lessonID)
	if err != nil {
		return nil, err
	}
	if !g.Has(start) {
		return nil, pageNotFound(start)
	}
	var out []Page
	for _, p := range g.SubPagesOf(start, stop...) {
		out = append(out, *p)
	}
	return out, nil
}

// relink rewrites the links of pages whose position in order changed.
func relink(ctx context.Context, st Store, pages map[int64]Page, order []int64) error {
	for i, id := range order {
		p := pages[id]
		var prev, next int64
		if i > 0 {
			prev = order[i-1]
		}
		if i < len(order)-1 {
			next = order[i+1]
		}
		if p.PrevPageID == prev && p.NextPageID == next {
			continue
		}
		p.PrevPageID, p.NextPageID = prev, next
		if err := st.UpdatePage(ctx, p); err != nil {
			return err
		}
		pages[id] = p
	}
	return nil
}

// editState is the validated page order of a lesson inside a transaction.
type editState struct {
	graph *Graph
	pages map[int64]Page
	order []int64
}

func loadEditState(ctx context.Context, st Store, lessonID int64) (*editState, error) {
	if _, err := st.GetLesson(ctx, lessonID); err != nil {
		return nil, err
	}
	g, err := loadGraph(ctx, st, lessonID)
	if err != nil {
		return nil, err
	}
	es := &editState{graph: g, pages: make(map[int64]Page, g.Len())}
	for _, p := range g.Pages() {
		es.pages[p.ID] = *p
		es.order = append(es.order, p.ID)
	}
	return es, nil
}

// insertAfter returns order with id placed after afterID, or first when
// afterID is zero.
func insertAfter(order []int64, id, afterID int64) ([]int64, error) {
	if afterID == 0 {
		return slices.Insert(slices.Clone(order), 0, id), nil
	}
	i := slices.Index(order, afterID)
	if i < 0 {
		return nil, pageNotFound(afterID)
	}
	return slices.Insert(slices.Clone(order), i+1, id), nil
}

// defaultAnswers gives structural pages their implicit jump.
func defaultAnswers(pages map[int64]Page, order []int64, p Page) []Answer {
	switch p.Type {
	case TypeCluster:
		return []Answer{{JumpTo: JumpClusterJump}}
	case TypeEndOfCluster:
		return []Answer{{JumpTo: JumpNextPage}}
	case TypeEndOfBranch:
		for i := slices.Index(order, p.ID) - 1; i >= 0; i-- {
			if pages[order[i]].Type == TypeBranchTable {
				return []Answer{{JumpTo: order[i]}}
			}
		}
		return []Answer{{JumpTo: JumpNextPage}}
	}
	return nil
}

func validateAnswers(p Page, answers []Answer, order []int64) error {
	if !p.Type.Valid() {
		return errors.Wrapf(ErrInvalidPage, "unknown page type %d", p.Type)
	}
	if (p.Type.IsQuestion() || p.Type == TypeBranchTable) && len(answers) == 0 {
		return errors.Wrapf(ErrInvalidPage, "%s page needs at least one answer", p.Type)
	}
	for _, a := range answers {
		if a.JumpTo > 0 && !slices.Contains(order, a.JumpTo) {
			return errors.Wrapf(ErrInvalidPage, "answer jumps to missing page %d", a.JumpTo)
		}
		if a.JumpTo < 0 && !validJump(a.JumpTo) {
			return errors.Wrapf(ErrInvalidPage, "unknown jump %d", a.JumpTo)
		}
	}
	return nil
}

func validJump(j int64) bool {
	switch j {
	case JumpThisPage, JumpNextPage, JumpEndOfLesson, JumpPreviousPage,
		JumpUnseenBranchPage, JumpRandomPage, JumpRandomBranch, JumpClusterJump:
		return true
	}
	return j > 0
}

// CreatePage inserts p after afterID (zero puts it first) with its answers.
func (e *Engine) CreatePage(ctx context.Context, lessonID, afterID int64, p Page, answers []Answer) (PageWithAnswers, error) {
	var out PageWithAnswers
	err := e.store.WithTx(ctx, func(tx Store) error {
		es, err := loadEditState(ctx, tx, lessonID)
		if err != nil {
			return err
		}
		if !p.Type.Valid() {
			return errors.Wrapf(ErrInvalidPage, "unknown page type %d", p.Type)
		}
		p.ID, p.LessonID, p.PrevPageID, p.NextPageID = 0, lessonID, 0, 0
		created, err := tx.CreatePage(ctx, p)
		if err != nil {
			return err
		}
		es.pages[created.ID] = created
		if es.order, err = insertAfter(es.order, created.ID, afterID); err != nil {
			return err
		}
		if len(answers) == 0 {
			answers = defaultAnswers(es.pages, es.order, created)
		}
		if err := validateAnswers(created, answers, es.order); err != nil {
			return err
		}
		if err := relink(ctx, tx, es.pages, es.order); err != nil {
			return err
		}
		out.Page = es.pages[created.ID]
		for _, a := range answers {
			a.ID, a.PageID, a.LessonID = 0, created.ID, lessonID
			ca, err := tx.CreateAnswer(ctx, a)
			if err != nil {
				return err
			}
			out.Answers = append(out.Answers, ca)
		}
		return nil
	})
	if err != nil {
		return PageWithAnswers{}, err
	}
	e.log.InfoContext(ctx, "page created",
		slog.Int64("lesson_id", lessonID), slog.Int64("page_id", out.ID), slog.String("type", out.Type.String()))
	return out, nil
}

// UpdatePage replaces the page content and its answer set. Links are kept.
// Answers with an id are updated, new ones inserted, omitted ones deleted.
func (e *Engine) UpdatePage(ctx context.Context, lessonID int64, p Page, answers []Answer) (PageWithAnswers, error) {
	var out PageWithAnswers
	err := e.store.WithTx(ctx, func(tx Store) error {
		es, err := loadEditState(ctx, tx, lessonID)
		if err != nil {
			return err
		}
		cur, ok := es.pages[p.ID]
		if !ok {
			return pageNotFound(p.ID)
		}
		p.LessonID, p.PrevPageID, p.NextPageID = lessonID, cur.PrevPageID, cur.NextPageID
		if len(answers) == 0 {
			answers = defaultAnswers(es.pages, es.order, p)
		}
		if err := validateAnswers(p, answers, es.order); err != nil {
			return err
		}
		if err := tx.UpdatePage(ctx, p); err != nil {
			return err
		}

		existing := map[int64]bool{}
		for _, a := range es.graph.Answers(p.ID) {
			existing[a.ID] = true
		}
		out.Page = p
		for _, a := range answers {
			a.PageID, a.LessonID = p.ID, lessonID
			if a.ID != 0 {
				if !existing[a.ID] {
					return errors.Wrapf(ErrAnswerNotFound, "answer %d on page %d", a.ID, p.ID)
				}
				if err := tx.UpdateAnswer(ctx, a); err != nil {
					return err
				}
				delete(existing, a.ID)
				out.Answers = append(out.Answers, a)
				continue
			}
			ca, err := tx.CreateAnswer(ctx, a)
			if err != nil {
				return err
			}
			out.Answers = append(out.Answers, ca)
		}
		for id := range existing {
			if err := tx.DeleteAnswer(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PageWithAnswers{}, err
	}
	return out, nil
}

// DeletePage unlinks the page and removes its answers and learner records.
// Answers elsewhere that jumped to it fall back to the next page.
func (e *Engine) DeletePage(ctx context.Context, lessonID, pageID int64) error {
	err := e.store.WithTx(ctx, func(tx Store) error {
		es, err := loadEditState(ctx, tx, lessonID)
		if err != nil {
			return err
		}
		if _, ok := es.pages[pageID]; !ok {
			return pageNotFound(pageID)
		}
		order := slices.DeleteFunc(slices.Clone(es.order), func(id int64) bool { return id == pageID })
		if err := relink(ctx, tx, es.pages, order); err != nil {
			return err
		}
		for _, a := range es.graph.Answers(pageID) {
			if err := tx.DeleteAnswer(ctx, a.ID); err != nil {
				return err
			}
		}
		// Jumps into the deleted page continue to the next page instead.
		for _, id := range order {
			for _, a := range es.graph.Answers(id) {
				if a.JumpTo != pageID {
					continue
				}
				a.JumpTo = JumpNextPage
				if err := tx.UpdateAnswer(ctx, a); err != nil {
					return err
				}
			}
		}
		if err := tx.DeleteRecords(ctx, RecordFilter{LessonID: lessonID, PageID: pageID}); err != nil {
			return err
		}
		return tx.DeletePage(ctx, pageID)
	})
	if err != nil {
		return err
	}
	e.log.InfoContext(ctx, "page deleted", slog.Int64("lesson_id", lessonID), slog.Int64("page_id", pageID))
	return nil
}

// ResortPages moves pageID after afterID, or to the front when afterID is zero.
func (e *Engine) ResortPages(ctx context.Context, lessonID, pageID, afterID int64) error {
	if pageID == afterID {
		return errors.Wrapf(ErrInvalidMove, "page %d after itself", pageID)
	}
	return e.store.WithTx(ctx, func(tx Store) error {
		es, err := loadEditState(ctx, tx, lessonID)
		if err != nil {
			return err
		}
		if _, ok := es.pages[pageID]; !ok {
			return pageNotFound(pageID)
		}
		rest := slices.DeleteFunc(slices.Clone(es.order), func(id int64) bool { return id == pageID })
		order, err := insertAfter(rest, pageID, afterID)
		if err != nil {
			return err
		}
		return relink(ctx, tx, es.pages, order)
	})
}

// DuplicatePage copies a page and its answers right after the source.
func (e *Engine) DuplicatePage(ctx context.Context, lessonID, pageID int64) (PageWithAnswers, error) {
	var out PageWithAnswers
	err := e.store.WithTx(ctx, func(tx Store) error {
		es, err := loadEditState(ctx, tx, lessonID)
		if err != nil {
			return err
		}
		src, ok := es.pages[pageID]
		if !ok {
			return pageNotFound(pageID)
		}
		cp := src
		cp.ID, cp.PrevPageID, cp.NextPageID = 0, 0, 0
		created, err := tx.CreatePage(ctx, cp)
		if err != nil {
			return err
		}
		es.pages[created.ID] = created
		if es.order, err = insertAfter(es.order, created.ID, pageID); err != nil {
			return err
		}
		if err := relink(ctx, tx, es.pages, es.order); err != nil {
			return err
		}
		out.Page = es.pages[created.ID]
		for _, a := range es.graph.Answers(pageID) {
			a.ID, a.PageID = 0, created.ID
			ca, err := tx.CreateAnswer(ctx, a)
			if err != nil {
				return err
			}
			out.Answers = append(out.Answers, ca)
		}
		return nil
	})
	if err != nil {
		return PageWithAnswers{}, err
	}
	return out, nil
}
