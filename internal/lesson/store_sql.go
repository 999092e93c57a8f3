package lesson

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	dbpkg "github.com/mind-engage/mindengage-lessons/internal/db"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLStore struct {
	db     *sql.DB
	q      querier
	inTx   bool
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, q: db, driver: driver}
}

func (s *SQLStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return dbpkg.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		return fn(&SQLStore{db: s.db, q: tx, inTx: true, driver: s.driver})
	})
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}

func (s *SQLStore) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := s.q.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLStore) execOne(ctx context.Context, notFound error, query string, args ...any) error {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return notFound
	}
	return nil
}

// --- lessons ---

const lessonCols = `id,name,custom,retake,use_max_grade,max_attempts,max_grade,time_limit_sec,
	available,deadline,password_hash,next_page_default,max_pages,feedback`

func scanLesson(sc interface{ Scan(...any) error }) (Lesson, error) {
	var l Lesson
	var limit, avail, deadline int64
	err := sc.Scan(&l.ID, &l.Name, &l.Custom, &l.Retake, &l.UseMaxGrade, &l.MaxAttempts, &l.MaxGrade,
		&limit, &avail, &deadline, &l.PasswordHash, &l.NextPageDefault, &l.MaxPages, &l.Feedback)
	if err != nil {
		return Lesson{}, err
	}
	l.TimeLimit = time.Duration(limit) * time.Second
	l.Available = fromUnix(avail)
	l.Deadline = fromUnix(deadline)
	return l, nil
}

func (s *SQLStore) CreateLesson(ctx context.Context, l Lesson) (Lesson, error) {
	id, err := s.insert(ctx, `INSERT INTO lessons (name,custom,retake,use_max_grade,max_attempts,max_grade,
		time_limit_sec,available,deadline,password_hash,next_page_default,max_pages,feedback)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		l.Name, b2i(l.Custom), b2i(l.Retake), b2i(l.UseMaxGrade), l.MaxAttempts, l.MaxGrade,
		int64(l.TimeLimit/time.Second), unix(l.Available), unix(l.Deadline), l.PasswordHash,
		int(l.NextPageDefault), l.MaxPages, b2i(l.Feedback))
	if err != nil {
		return Lesson{}, errors.Wrap(err, "insert lesson")
	}
	l.ID = id
	return l, nil
}

func (s *SQLStore) GetLesson(ctx context.Context, id int64) (Lesson, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+lessonCols+` FROM lessons WHERE id=$1`, id)
	l, err := scanLesson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Lesson{}, errors.Wrapf(ErrLessonNotFound, "lesson %d", id)
	}
	return l, errors.Wrap(err, "get lesson")
}

func (s *SQLStore) UpdateLesson(ctx context.Context, l Lesson) error {
	return s.execOne(ctx, errors.Wrapf(ErrLessonNotFound, "lesson %d", l.ID),
		`UPDATE lessons SET name=$1,custom=$2,retake=$3,use_max_grade=$4,max_attempts=$5,max_grade=$6,
		time_limit_sec=$7,available=$8,deadline=$9,password_hash=$10,next_page_default=$11,max_pages=$12,feedback=$13
		WHERE id=$14`,
		l.Name, b2i(l.Custom), b2i(l.Retake), b2i(l.UseMaxGrade), l.MaxAttempts, l.MaxGrade,
		int64(l.TimeLimit/time.Second), unix(l.Available), unix(l.Deadline), l.PasswordHash,
		int(l.NextPageDefault), l.MaxPages, b2i(l.Feedback), l.ID)
}

// --- pages ---

const pageCols = `id,lesson_id,prev_page_id,next_page_id,qtype,title,contents,qoption,layout`

func scanPage(sc interface{ Scan(...any) error }) (Page, error) {
	var p Page
	err := sc.Scan(&p.ID, &p.LessonID, &p.PrevPageID, &p.NextPageID, &p.Type, &p.Title, &p.Contents, &p.QOption, &p.Layout)
	return p, err
}

func (s *SQLStore) ListPages(ctx context.Context, lessonID int64) ([]Page, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+pageCols+` FROM lesson_pages WHERE lesson_id=$1 ORDER BY id`, lessonID)
	if err != nil {
		return nil, errors.Wrap(err, "list pages")
	}
	defer rows.Close()
	out := []Page{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetPage(ctx context.Context, id int64) (Page, error) {
	p, err := scanPage(s.q.QueryRowContext(ctx, `SELECT `+pageCols+` FROM lesson_pages WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, pageNotFound(id)
	}
	return p, errors.Wrap(err, "get page")
}

func (s *SQLStore) CreatePage(ctx context.Context, p Page) (Page, error) {
	id, err := s.insert(ctx, `INSERT INTO lesson_pages (lesson_id,prev_page_id,next_page_id,qtype,title,contents,qoption,layout)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.LessonID, p.PrevPageID, p.NextPageID, int(p.Type), p.Title, p.Contents, b2i(p.QOption), b2i(p.Layout))
	if err != nil {
		return Page{}, errors.Wrap(err, "insert page")
	}
	p.ID = id
	return p, nil
}

func (s *SQLStore) UpdatePage(ctx context.Context, p Page) error {
	return s.execOne(ctx, pageNotFound(p.ID),
		`UPDATE lesson_pages SET prev_page_id=$1,next_page_id=$2,qtype=$3,title=$4,contents=$5,qoption=$6,layout=$7
		WHERE id=$8`,
		p.PrevPageID, p.NextPageID, int(p.Type), p.Title, p.Contents, b2i(p.QOption), b2i(p.Layout), p.ID)
}

func (s *SQLStore) DeletePage(ctx context.Context, id int64) error {
	return s.execOne(ctx, pageNotFound(id), `DELETE FROM lesson_pages WHERE id=$1`, id)
}

// --- answers ---

const answerCols = `id,page_id,lesson_id,answer,answer_format,response,response_format,jumpto,score`

func (s *SQLStore) listAnswers(ctx context.Context, where string, arg int64) ([]Answer, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+answerCols+` FROM lesson_answers WHERE `+where+`=$1 ORDER BY id`, arg)
	if err != nil {
		return nil, errors.Wrap(err, "list answers")
	}
	defer rows.Close()
	out := []Answer{}
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.ID, &a.PageID, &a.LessonID, &a.AnswerText, &a.AnswerFormat,
			&a.ResponseText, &a.ResponseFormat, &a.JumpTo, &a.Score); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListAnswers(ctx context.Context, lessonID int64) ([]Answer, error) {
	return s.listAnswers(ctx, "lesson_id", lessonID)
}

func (s *SQLStore) ListPageAnswers(ctx context.Context, pageID int64) ([]Answer, error) {
	return s.listAnswers(ctx, "page_id", pageID)
}

func (s *SQLStore) CreateAnswer(ctx context.Context, a Answer) (Answer, error) {
	id, err := s.insert(ctx, `INSERT INTO lesson_answers (page_id,lesson_id,answer,answer_format,response,response_format,jumpto,score)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.PageID, a.LessonID, a.AnswerText, a.AnswerFormat, a.ResponseText, a.ResponseFormat, a.JumpTo, a.Score)
	if err != nil {
		return Answer{}, errors.Wrap(err, "insert answer")
	}
	a.ID = id
	return a, nil
}

func (s *SQLStore) UpdateAnswer(ctx context.Context, a Answer) error {
	return s.execOne(ctx, errors.Wrapf(ErrAnswerNotFound, "answer %d", a.ID),
		`UPDATE lesson_answers SET answer=$1,answer_format=$2,response=$3,response_format=$4,jumpto=$5,score=$6
		WHERE id=$7`,
		a.AnswerText, a.AnswerFormat, a.ResponseText, a.ResponseFormat, a.JumpTo, a.Score, a.ID)
}

func (s *SQLStore) DeleteAnswer(ctx context.Context, id int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM lesson_answers WHERE id=$1`, id)
	return errors.Wrap(err, "delete answer")
}

// --- attempts & branches ---

// where renders f as a WHERE clause with numbered placeholders.
func (f RecordFilter) where() (string, []any) {
	var conds []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, col+"=$"+strconv.Itoa(len(args)))
	}
	if f.LessonID != 0 {
		add("lesson_id", f.LessonID)
	}
	if f.UserID != 0 {
		add("user_id", f.UserID)
	}
	if f.PageID != 0 {
		add("page_id", f.PageID)
	}
	if f.Retry != nil {
		add("retry", *f.Retry)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const attemptCols = `id,lesson_id,page_id,user_id,answer_id,retry,correct,user_answer,time_seen`

func scanAttempt(sc interface{ Scan(...any) error }) (Attempt, error) {
	var a Attempt
	var seen int64
	err := sc.Scan(&a.ID, &a.LessonID, &a.PageID, &a.UserID, &a.AnswerID, &a.Retry, &a.Correct, &a.UserAnswer, &seen)
	a.TimeSeen = fromUnix(seen)
	return a, err
}

func (s *SQLStore) InsertAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	id, err := s.insert(ctx, `INSERT INTO lesson_attempts (lesson_id,page_id,user_id,answer_id,retry,correct,user_answer,time_seen)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.LessonID, a.PageID, a.UserID, a.AnswerID, a.Retry, b2i(a.Correct), a.UserAnswer, unix(a.TimeSeen))
	if err != nil {
		return Attempt{}, errors.Wrap(err, "insert attempt")
	}
	a.ID = id
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id int64) (Attempt, error) {
	a, err := scanAttempt(s.q.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM lesson_attempts WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, errors.Wrapf(ErrAttemptNotFound, "attempt %d", id)
	}
	return a, errors.Wrap(err, "get attempt")
}

func (s *SQLStore) UpdateAttempt(ctx context.Context, a Attempt) error {
	return s.execOne(ctx, errors.Wrapf(ErrAttemptNotFound, "attempt %d", a.ID),
		`UPDATE lesson_attempts SET answer_id=$1,retry=$2,correct=$3,user_answer=$4,time_seen=$5 WHERE id=$6`,
		a.AnswerID, a.Retry, b2i(a.Correct), a.UserAnswer, unix(a.TimeSeen), a.ID)
}

func (s *SQLStore) ListAttempts(ctx context.Context, f RecordFilter) ([]Attempt, error) {
	where, args := f.where()
	rows, err := s.q.QueryContext(ctx, `SELECT `+attemptCols+` FROM lesson_attempts`+where+` ORDER BY time_seen, id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list attempts")
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) InsertBranch(ctx context.Context, b Branch) (Branch, error) {
	id, err := s.insert(ctx, `INSERT INTO lesson_branch (lesson_id,user_id,page_id,retry,next_page_id,flag,time_seen)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.LessonID, b.UserID, b.PageID, b.Retry, b.NextPageID, b2i(b.Flag), unix(b.TimeSeen))
	if err != nil {
		return Branch{}, errors.Wrap(err, "insert branch")
	}
	b.ID = id
	return b, nil
}

func (s *SQLStore) ListBranches(ctx context.Context, f RecordFilter) ([]Branch, error) {
	where, args := f.where()
	rows, err := s.q.QueryContext(ctx, `SELECT id,lesson_id,user_id,page_id,retry,next_page_id,flag,time_seen
		FROM lesson_branch`+where+` ORDER BY time_seen, id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list branches")
	}
	defer rows.Close()
	out := []Branch{}
	for rows.Next() {
		var b Branch
		var seen int64
		if err := rows.Scan(&b.ID, &b.LessonID, &b.UserID, &b.PageID, &b.Retry, &b.NextPageID, &b.Flag, &seen); err != nil {
			return nil, err
		}
		b.TimeSeen = fromUnix(seen)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteRecords(ctx context.Context, f RecordFilter) error {
	where, args := f.where()
	if where == "" {
		return errors.New("delete records: empty filter")
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM lesson_attempts`+where, args...); err != nil {
		return errors.Wrap(err, "delete attempts")
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM lesson_branch`+where, args...); err != nil {
		return errors.Wrap(err, "delete branches")
	}
	return nil
}

func (s *SQLStore) ShiftRetries(ctx context.Context, lessonID, userID int64, after int) error {
	for _, table := range []string{"lesson_attempts", "lesson_branch", "lesson_timer"} {
		if _, err := s.q.ExecContext(ctx, `UPDATE `+table+` SET retry=retry-1
			WHERE lesson_id=$1 AND user_id=$2 AND retry>$3`, lessonID, userID, after); err != nil {
			return errors.Wrapf(err, "shift %s", table)
		}
	}
	return nil
}

func (s *SQLStore) ResetLesson(ctx context.Context, lessonID int64) error {
	for _, table := range []string{"lesson_attempts", "lesson_branch", "lesson_grades", "lesson_timer"} {
		if _, err := s.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE lesson_id=$1`, lessonID); err != nil {
			return errors.Wrapf(err, "reset %s", table)
		}
	}
	return nil
}

// --- grades ---

func (s *SQLStore) InsertGrade(ctx context.Context, g Grade) (Grade, error) {
	id, err := s.insert(ctx, `INSERT INTO lesson_grades (lesson_id,user_id,grade,completed) VALUES ($1,$2,$3,$4)`,
		g.LessonID, g.UserID, g.Grade, unix(g.Completed))
	if err != nil {
		return Grade{}, errors.Wrap(err, "insert grade")
	}
	g.ID = id
	return g, nil
}

func (s *SQLStore) UpdateGrade(ctx context.Context, g Grade) error {
	return s.execOne(ctx, errors.Errorf("grade %d not found", g.ID),
		`UPDATE lesson_grades SET grade=$1,completed=$2 WHERE id=$3`, g.Grade, unix(g.Completed), g.ID)
}

func (s *SQLStore) DeleteGrade(ctx context.Context, id int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM lesson_grades WHERE id=$1`, id)
	return errors.Wrap(err, "delete grade")
}

func (s *SQLStore) ListGrades(ctx context.Context, lessonID, userID int64) ([]Grade, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id,lesson_id,user_id,grade,completed FROM lesson_grades
		WHERE lesson_id=$1 AND user_id=$2 ORDER BY completed, id`, lessonID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list grades")
	}
	defer rows.Close()
	out := []Grade{}
	for rows.Next() {
		var g Grade
		var completed int64
		if err := rows.Scan(&g.ID, &g.LessonID, &g.UserID, &g.Grade, &completed); err != nil {
			return nil, err
		}
		g.Completed = fromUnix(completed)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListGradedUsers(ctx context.Context, lessonID int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT DISTINCT user_id FROM lesson_grades WHERE lesson_id=$1 ORDER BY user_id`, lessonID)
	if err != nil {
		return nil, errors.Wrap(err, "list graded users")
	}
	defer rows.Close()
	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- timers ---

func (s *SQLStore) InsertTimer(ctx context.Context, t Timer) (Timer, error) {
	id, err := s.insert(ctx, `INSERT INTO lesson_timer (lesson_id,user_id,retry,start_time,lesson_time,completed)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.LessonID, t.UserID, t.Retry, unix(t.StartTime), unix(t.LessonTime), b2i(t.Completed))
	if err != nil {
		return Timer{}, errors.Wrap(err, "insert timer")
	}
	t.ID = id
	return t, nil
}

func (s *SQLStore) UpdateTimer(ctx context.Context, t Timer) error {
	return s.execOne(ctx, errors.Errorf("timer %d not found", t.ID),
		`UPDATE lesson_timer SET start_time=$1,lesson_time=$2,completed=$3 WHERE id=$4`,
		unix(t.StartTime), unix(t.LessonTime), b2i(t.Completed), t.ID)
}

func (s *SQLStore) DeleteTimer(ctx context.Context, id int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM lesson_timer WHERE id=$1`, id)
	return errors.Wrap(err, "delete timer")
}

func (s *SQLStore) ListTimers(ctx context.Context, lessonID, userID int64) ([]Timer, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id,lesson_id,user_id,retry,start_time,lesson_time,completed FROM lesson_timer
		WHERE lesson_id=$1 AND user_id=$2 ORDER BY start_time, id`, lessonID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list timers")
	}
	defer rows.Close()
	out := []Timer{}
	for rows.Next() {
		var t Timer
		var start, last int64
		if err := rows.Scan(&t.ID, &t.LessonID, &t.UserID, &t.Retry, &start, &last, &t.Completed); err != nil {
			return nil, err
		}
		t.StartTime = fromUnix(start)
		t.LessonTime = fromUnix(last)
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- overrides ---

func (s *SQLStore) GetOverride(ctx context.Context, lessonID, userID int64) (Override, bool, error) {
	var raw string
	var hash sql.NullString
	err := s.q.QueryRowContext(ctx, `SELECT override_json,password_hash FROM lesson_overrides
		WHERE lesson_id=$1 AND user_id=$2`, lessonID, userID).Scan(&raw, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Override{}, false, nil
	}
	if err != nil {
		return Override{}, false, errors.Wrap(err, "get override")
	}
	var o Override
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return Override{}, false, errors.Wrap(err, "decode override")
	}
	o.LessonID, o.UserID = lessonID, userID
	if hash.Valid {
		h := hash.String
		o.PasswordHash = &h
	}
	return o, true, nil
}

func (s *SQLStore) PutOverride(ctx context.Context, o Override) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "encode override")
	}
	var hash sql.NullString
	if o.PasswordHash != nil {
		hash = sql.NullString{String: *o.PasswordHash, Valid: true}
	}
	_, err = s.q.ExecContext(ctx, `INSERT INTO lesson_overrides (lesson_id,user_id,override_json,password_hash)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (lesson_id,user_id) DO UPDATE SET override_json=EXCLUDED.override_json, password_hash=EXCLUDED.password_hash`,
		o.LessonID, o.UserID, string(raw), hash)
	return errors.Wrap(err, "put override")
}
