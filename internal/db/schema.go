package db

// Timestamps are unix seconds; 0 means unset. Flags are 0/1 integers on both
// drivers so the same queries bind on each.

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS lessons (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  custom INTEGER NOT NULL DEFAULT 0,
  retake INTEGER NOT NULL DEFAULT 0,
  use_max_grade INTEGER NOT NULL DEFAULT 0,
  max_attempts INTEGER NOT NULL DEFAULT 0,
  max_grade REAL NOT NULL DEFAULT 100,
  time_limit_sec INTEGER NOT NULL DEFAULT 0,
  available INTEGER NOT NULL DEFAULT 0,
  deadline INTEGER NOT NULL DEFAULT 0,
  password_hash TEXT NOT NULL DEFAULT '',
  next_page_default INTEGER NOT NULL DEFAULT 0,
  max_pages INTEGER NOT NULL DEFAULT 0,
  feedback INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS lesson_pages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  lesson_id INTEGER NOT NULL,
  prev_page_id INTEGER NOT NULL DEFAULT 0,
  next_page_id INTEGER NOT NULL DEFAULT 0,
  qtype INTEGER NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  contents TEXT NOT NULL DEFAULT '',
  qoption INTEGER NOT NULL DEFAULT 0,
  layout INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_lesson_pages_lesson ON lesson_pages(lesson_id);

CREATE TABLE IF NOT EXISTS lesson_answers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  lesson_id INTEGER NOT NULL,
  page_id INTEGER NOT NULL,
  answer TEXT NOT NULL DEFAULT '',
  answer_format INTEGER NOT NULL DEFAULT 0,
  response TEXT NOT NULL DEFAULT '',
  response_format INTEGER NOT NULL DEFAULT 0,
  jumpto INTEGER NOT NULL DEFAULT 0,
  score INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_lesson_answers_page ON lesson_answers(page_id);

CREATE TABLE IF NOT EXISTS lesson_attempts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  lesson_id INTEGER NOT NULL,
  page_id INTEGER NOT NULL,
  user_id INTEGER NOT NULL,
  answer_id INTEGER NOT NULL DEFAULT 0,
  retry INTEGER NOT NULL,
  correct INTEGER NOT NULL DEFAULT 0,
  user_answer TEXT NOT NULL DEFAULT '',
  time_seen INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lesson_attempts_user ON lesson_attempts(lesson_id, user_id, retry);

CREATE TABLE IF NOT EXISTS lesson_branch (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  lesson_id INTEGER NOT NULL,
  user_id INTEGER NOT NULL,
  page_id INTEGER NOT NULL,
  retry INTEGER NOT NULL,
  next_page_id INTEGER NOT NULL DEFAULT 0,
  flag INTEGER NOT NULL DEFAULT 0,
  time_seen INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lesson_branch_user ON lesson_branch(lesson_id, user_id, retry);

CREATE TABLE IF NOT EXISTS lesson_grades (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  lesson_id INTEGER NOT NULL,
  user_id INTEGER NOT NULL,
  grade REAL NOT NULL DEFAULT 0,
  completed INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lesson_grades_user ON lesson_grades(lesson_id, user_id);

CREATE TABLE IF NOT EXISTS lesson_timer (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  lesson_id INTEGER NOT NULL,
  user_id INTEGER NOT NULL,
  retry INTEGER NOT NULL DEFAULT 0,
  start_time INTEGER NOT NULL,
  lesson_time INTEGER NOT NULL,
  completed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_lesson_timer_user ON lesson_timer(lesson_id, user_id);

CREATE TABLE IF NOT EXISTS lesson_overrides (
  lesson_id INTEGER NOT NULL,
  user_id INTEGER NOT NULL,
  override_json TEXT NOT NULL,
  password_hash TEXT,
  PRIMARY KEY (lesson_id, user_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  event_id TEXT NOT NULL,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS lessons (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  custom INTEGER NOT NULL DEFAULT 0,
  retake INTEGER NOT NULL DEFAULT 0,
  use_max_grade INTEGER NOT NULL DEFAULT 0,
  max_attempts INTEGER NOT NULL DEFAULT 0,
  max_grade DOUBLE PRECISION NOT NULL DEFAULT 100,
  time_limit_sec BIGINT NOT NULL DEFAULT 0,
  available BIGINT NOT NULL DEFAULT 0,
  deadline BIGINT NOT NULL DEFAULT 0,
  password_hash TEXT NOT NULL DEFAULT '',
  next_page_default INTEGER NOT NULL DEFAULT 0,
  max_pages INTEGER NOT NULL DEFAULT 0,
  feedback INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS lesson_pages (
  id BIGSERIAL PRIMARY KEY,
  lesson_id BIGINT NOT NULL,
  prev_page_id BIGINT NOT NULL DEFAULT 0,
  next_page_id BIGINT NOT NULL DEFAULT 0,
  qtype INTEGER NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  contents TEXT NOT NULL DEFAULT '',
  qoption INTEGER NOT NULL DEFAULT 0,
  layout INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_lesson_pages_lesson ON lesson_pages(lesson_id);

CREATE TABLE IF NOT EXISTS lesson_answers (
  id BIGSERIAL PRIMARY KEY,
  lesson_id BIGINT NOT NULL,
  page_id BIGINT NOT NULL,
  answer TEXT NOT NULL DEFAULT '',
  answer_format INTEGER NOT NULL DEFAULT 0,
  response TEXT NOT NULL DEFAULT '',
  response_format INTEGER NOT NULL DEFAULT 0,
  jumpto BIGINT NOT NULL DEFAULT 0,
  score INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_lesson_answers_page ON lesson_answers(page_id);

CREATE TABLE IF NOT EXISTS lesson_attempts (
  id BIGSERIAL PRIMARY KEY,
  lesson_id BIGINT NOT NULL,
  page_id BIGINT NOT NULL,
  user_id BIGINT NOT NULL,
  answer_id BIGINT NOT NULL DEFAULT 0,
  retry INTEGER NOT NULL,
  correct INTEGER NOT NULL DEFAULT 0,
  user_answer TEXT NOT NULL DEFAULT '',
  time_seen BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lesson_attempts_user ON lesson_attempts(lesson_id, user_id, retry);

CREATE TABLE IF NOT EXISTS lesson_branch (
  id BIGSERIAL PRIMARY KEY,
  lesson_id BIGINT NOT NULL,
  user_id BIGINT NOT NULL,
  page_id BIGINT NOT NULL,
  retry INTEGER NOT NULL,
  next_page_id BIGINT NOT NULL DEFAULT 0,
  flag INTEGER NOT NULL DEFAULT 0,
  time_seen BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lesson_branch_user ON lesson_branch(lesson_id, user_id, retry);

CREATE TABLE IF NOT EXISTS lesson_grades (
  id BIGSERIAL PRIMARY KEY,
  lesson_id BIGINT NOT NULL,
  user_id BIGINT NOT NULL,
  grade DOUBLE PRECISION NOT NULL DEFAULT 0,
  completed BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lesson_grades_user ON lesson_grades(lesson_id, user_id);

CREATE TABLE IF NOT EXISTS lesson_timer (
  id BIGSERIAL PRIMARY KEY,
  lesson_id BIGINT NOT NULL,
  user_id BIGINT NOT NULL,
  retry INTEGER NOT NULL DEFAULT 0,
  start_time BIGINT NOT NULL,
  lesson_time BIGINT NOT NULL,
  completed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_lesson_timer_user ON lesson_timer(lesson_id, user_id);

CREATE TABLE IF NOT EXISTS lesson_overrides (
  lesson_id BIGINT NOT NULL,
  user_id BIGINT NOT NULL,
  override_json TEXT NOT NULL,
  password_hash TEXT,
  PRIMARY KEY (lesson_id, user_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  event_id TEXT NOT NULL,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
