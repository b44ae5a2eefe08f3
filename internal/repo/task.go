package repo

import (
	"context"
	_ "embed"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/tasks-api/internal/model"
)

var (
	ErrorNotFound = errors.New("not found")
)

//go:embed migrations/001_create_tasks.up.sql
var createTasksSQL string

const taskColumns = `id::text, created_at, title, description, completed`

type TaskRepo struct { // Репозиторий для работы непосредственно с БД
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo { // Конструктор
	return &TaskRepo{
		pool: pool,
	}
}

// Migrate создает таблицу задач, если её еще нет
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, createTasksSQL)
	return err
}

func (r *TaskRepo) Insert(ctx context.Context, in model.NewTask) (model.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, title, description, completed)
		VALUES ($1, $2, $3, false)
		RETURNING `+taskColumns,
		uuid.NewString(), in.Title, in.Description,
	))
	return t, r.mapError(err)
}

func (r *TaskRepo) GetByID(ctx context.Context, id string) (model.Task, error) {
	if !validID(id) {
		return model.Task{}, ErrorNotFound
	}
	t, err := scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`, id))
	return t, r.mapError(err)
}

func (r *TaskRepo) ListAllOrderedByCreation(ctx context.Context) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		ORDER BY created_at DESC, seq DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// PatchByID меняет только поля, переданные в patch. Одна команда UPDATE,
// поэтому запись применяется атомарно; последняя запись побеждает.
func (r *TaskRepo) PatchByID(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	if !validID(id) {
		return model.Task{}, ErrorNotFound
	}

	title, setTitle := patch.Title.Get()
	completed, setCompleted := patch.Completed.Get()
	var description *string
	if v, ok := patch.Description.Get(); ok {
		description = &v
	}

	t, err := scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET title       = CASE WHEN $2 THEN $3 ELSE title END,
		    description = CASE WHEN $4 THEN $5 ELSE description END,
		    completed   = CASE WHEN $6 THEN $7 ELSE completed END
		WHERE id = $1
		RETURNING `+taskColumns,
		id,
		setTitle, title,
		!patch.Description.IsUnchanged(), description,
		setCompleted, completed,
	))
	return t, r.mapError(err)
}

func (r *TaskRepo) DeleteByID(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrorNotFound
	}
	cmd, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return r.mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

func scanTask(row pgx.Row) (model.Task, error) {
	var t model.Task
	err := row.Scan(&t.ID, &t.CreatedAt, &t.Title, &t.Description, &t.Completed)
	return t, err
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *TaskRepo) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "22P02" { // invalid_text_representation: не UUID
			return ErrorNotFound
		}
	}
	return err
}
