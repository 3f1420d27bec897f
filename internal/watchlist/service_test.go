package watchlist

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/watchlist/internal/model"
	"github.com/hitoshi/watchlist/internal/repository"
)

const (
	testUserID  = "2f1b7c9e-5d43-4a8e-9b6f-0c1d2e3f4a5b"
	testMovieID = "11111111-1111-1111-1111-111111111111"
	testItemID  = "9b2c1d0e-8f7a-4b6c-9d5e-4f3a2b1c0d9e"
)

// --- モック定義 ---

type mockTodoRepo struct {
	listByUserFn        func(ctx context.Context, userID string) ([]*model.TodoItem, error)
	createFn            func(ctx context.Context, item *model.TodoItem) error
	updateCompletionFn  func(ctx context.Context, id, userID string, completed bool) (*model.TodoItem, error)
	deleteByIDAndUserFn func(ctx context.Context, id, userID string) (*model.TodoItem, error)
}

var _ repository.TodoRepository = (*mockTodoRepo)(nil)

func (m *mockTodoRepo) ListByUser(ctx context.Context, userID string) ([]*model.TodoItem, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockTodoRepo) Create(ctx context.Context, item *model.TodoItem) error {
	if m.createFn != nil {
		return m.createFn(ctx, item)
	}
	return nil
}

func (m *mockTodoRepo) UpdateCompletion(ctx context.Context, id, userID string, completed bool) (*model.TodoItem, error) {
	if m.updateCompletionFn != nil {
		return m.updateCompletionFn(ctx, id, userID, completed)
	}
	return nil, nil
}

func (m *mockTodoRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) (*model.TodoItem, error) {
	if m.deleteByIDAndUserFn != nil {
		return m.deleteByIDAndUserFn(ctx, id, userID)
	}
	return nil, nil
}

func (m *mockTodoRepo) CountByUserAndMovie(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

type refCall struct {
	userID  string
	movieID string
	entryID *string
	ctxErr  error
}

type mockRefs struct {
	mu    sync.Mutex
	calls []refCall
	err   error
}

func (m *mockRefs) SetMovieEntry(ctx context.Context, userID, movieID string, entryID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, refCall{userID: userID, movieID: movieID, entryID: entryID, ctxErr: ctx.Err()})
	return m.err
}

func (m *mockRefs) snapshot() []refCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]refCall(nil), m.calls...)
}

type mockFailures struct {
	n atomic.Int32
}

func (m *mockFailures) IncCacheSyncFailure() { m.n.Add(1) }

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %s, want %s", apiErr.Code, code)
	}
}

func boolPtr(b bool) *bool { return &b }

// --- List ---

func TestService_List_ReturnsEmptySliceWhenNone(t *testing.T) {
	svc := NewService(&mockTodoRepo{}, nil, ServiceConfig{})

	items, err := svc.List(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("List = %#v, want empty non-nil slice", items)
	}
}

func TestService_List_ScopesByUser(t *testing.T) {
	var gotUser string
	repo := &mockTodoRepo{
		listByUserFn: func(_ context.Context, userID string) ([]*model.TodoItem, error) {
			gotUser = userID
			return []*model.TodoItem{{ID: testItemID, UserID: userID}}, nil
		},
	}
	svc := NewService(repo, nil, ServiceConfig{})

	items, err := svc.List(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if gotUser != testUserID {
		t.Errorf("repo called with user %q, want %q", gotUser, testUserID)
	}
	if len(items) != 1 {
		t.Errorf("len(items) = %d, want 1", len(items))
	}
}

func TestService_List_RepoError_IsWrapped(t *testing.T) {
	dbErr := errors.New("connection refused")
	svc := NewService(&mockTodoRepo{
		listByUserFn: func(context.Context, string) ([]*model.TodoItem, error) { return nil, dbErr },
	}, nil, ServiceConfig{})

	_, err := svc.List(context.Background(), testUserID)
	if !errors.Is(err, dbErr) {
		t.Errorf("error = %v, want wrapping %v", err, dbErr)
	}
}

// --- Add ---

func TestService_Add_Success_SyncsBackReference(t *testing.T) {
	var created *model.TodoItem
	repo := &mockTodoRepo{
		createFn: func(_ context.Context, item *model.TodoItem) error {
			created = item
			item.CreatedAt = time.Now()
			item.ModifiedAt = item.CreatedAt
			return nil
		},
	}
	refs := &mockRefs{}
	svc := NewService(repo, refs, ServiceConfig{})

	item, err := svc.Add(context.Background(), testUserID, AddInput{MovieID: testMovieID})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	svc.Wait()

	if item.UserID != testUserID || item.MovieID != testMovieID || item.IsCompleted {
		t.Errorf("unexpected item: %+v", item)
	}
	if item.ID == "" || created == nil || created.ID != item.ID {
		t.Error("Add should generate an id and pass the item to the repository")
	}

	calls := refs.snapshot()
	if len(calls) != 1 {
		t.Fatalf("SetMovieEntry calls = %d, want 1", len(calls))
	}
	c := calls[0]
	if c.userID != testUserID || c.movieID != testMovieID || c.entryID == nil || *c.entryID != item.ID {
		t.Errorf("unexpected back-reference write: %+v", c)
	}
}

func TestService_Add_InvalidMovieID(t *testing.T) {
	tests := []struct {
		name    string
		movieID string
		message string
	}{
		{"未指定", "", "movie_id is required"},
		{"UUIDでない", "12345", "movie_id must be a valid UUID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			repo := &mockTodoRepo{
				createFn: func(context.Context, *model.TodoItem) error {
					called = true
					return nil
				},
			}
			svc := NewService(repo, nil, ServiceConfig{})

			_, err := svc.Add(context.Background(), testUserID, AddInput{MovieID: tt.movieID})
			assertAPIErrorCode(t, err, model.ErrCodeInvalidMovieID)
			// フィールド名はメッセージ中に一度だけ現れる
			var apiErr *model.APIError
			if errors.As(err, &apiErr) && apiErr.Message != tt.message {
				t.Errorf("message = %q, want %q", apiErr.Message, tt.message)
			}
			if called {
				t.Error("repository must not be called for invalid input")
			}
		})
	}
}

func TestService_Add_Duplicate_ReturnsConflict(t *testing.T) {
	refs := &mockRefs{}
	svc := NewService(&mockTodoRepo{
		createFn: func(context.Context, *model.TodoItem) error { return repository.ErrDuplicateMovie },
	}, refs, ServiceConfig{})

	_, err := svc.Add(context.Background(), testUserID, AddInput{MovieID: testMovieID})
	svc.Wait()

	assertAPIErrorCode(t, err, model.ErrCodeDuplicateMovie)
	if n := len(refs.snapshot()); n != 0 {
		t.Errorf("back-reference must not be written on conflict, got %d calls", n)
	}
}

func TestService_Add_RepoError_IsNotAPIError(t *testing.T) {
	svc := NewService(&mockTodoRepo{
		createFn: func(context.Context, *model.TodoItem) error { return errors.New("db down") },
	}, nil, ServiceConfig{})

	_, err := svc.Add(context.Background(), testUserID, AddInput{MovieID: testMovieID})
	var apiErr *model.APIError
	if err == nil || errors.As(err, &apiErr) {
		t.Errorf("infrastructure error should not be an APIError: %v", err)
	}
}

// TestService_Add_BackReferenceUsesDetachedContext はリクエストのキャンセルが逆参照書き込みに伝播しないことを検証する。
func TestService_Add_BackReferenceUsesDetachedContext(t *testing.T) {
	refs := &mockRefs{}
	svc := NewService(&mockTodoRepo{}, refs, ServiceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := svc.Add(ctx, testUserID, AddInput{MovieID: testMovieID}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	cancel()
	svc.Wait()

	calls := refs.snapshot()
	if len(calls) != 1 {
		t.Fatalf("SetMovieEntry calls = %d, want 1", len(calls))
	}
	if calls[0].ctxErr != nil {
		t.Errorf("back-reference context should not inherit request cancellation: %v", calls[0].ctxErr)
	}
}

func TestService_Add_BackReferenceFailure_IsLoggedAndCounted(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	failures := &mockFailures{}
	refs := &mockRefs{err: errors.New("cache unavailable")}
	svc := NewService(&mockTodoRepo{}, refs, ServiceConfig{Logger: logger, Failures: failures})

	if _, err := svc.Add(context.Background(), testUserID, AddInput{MovieID: testMovieID}); err != nil {
		t.Fatalf("Add should succeed even if cache sync fails: %v", err)
	}
	svc.Wait()

	if got := failures.n.Load(); got != 1 {
		t.Errorf("failure count = %d, want 1", got)
	}
	if !strings.Contains(buf.String(), "failed to sync movie back-reference") {
		t.Errorf("expected warning log, got: %s", buf.String())
	}
}

// --- UpdateCompletion ---

func TestService_UpdateCompletion_Success(t *testing.T) {
	var gotID, gotUser string
	var gotFlag bool
	repo := &mockTodoRepo{
		updateCompletionFn: func(_ context.Context, id, userID string, completed bool) (*model.TodoItem, error) {
			gotID, gotUser, gotFlag = id, userID, completed
			return &model.TodoItem{ID: id, UserID: userID, MovieID: testMovieID, IsCompleted: completed}, nil
		},
	}
	svc := NewService(repo, nil, ServiceConfig{})

	item, err := svc.UpdateCompletion(context.Background(), testUserID, testItemID, UpdateInput{IsCompleted: boolPtr(true)})
	if err != nil {
		t.Fatalf("UpdateCompletion: %v", err)
	}
	if !item.IsCompleted {
		t.Error("returned item should be completed")
	}
	if gotID != testItemID || gotUser != testUserID || !gotFlag {
		t.Errorf("repo called with (%q, %q, %v)", gotID, gotUser, gotFlag)
	}
}

func TestService_UpdateCompletion_FalseIsAValidFlag(t *testing.T) {
	repo := &mockTodoRepo{
		updateCompletionFn: func(_ context.Context, id, userID string, completed bool) (*model.TodoItem, error) {
			return &model.TodoItem{ID: id, UserID: userID, IsCompleted: completed}, nil
		},
	}
	svc := NewService(repo, nil, ServiceConfig{})

	item, err := svc.UpdateCompletion(context.Background(), testUserID, testItemID, UpdateInput{IsCompleted: boolPtr(false)})
	if err != nil {
		t.Fatalf("UpdateCompletion(false): %v", err)
	}
	if item.IsCompleted {
		t.Error("returned item should not be completed")
	}
}

func TestService_UpdateCompletion_Validation(t *testing.T) {
	svc := NewService(&mockTodoRepo{
		updateCompletionFn: func(context.Context, string, string, bool) (*model.TodoItem, error) {
			t.Fatal("repository must not be called for invalid input")
			return nil, nil
		},
	}, nil, ServiceConfig{})

	_, err := svc.UpdateCompletion(context.Background(), testUserID, "not-a-uuid", UpdateInput{IsCompleted: boolPtr(true)})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidItemID)

	_, err = svc.UpdateCompletion(context.Background(), testUserID, testItemID, UpdateInput{})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCompletionFlag)
}

func TestService_UpdateCompletion_NotOwned_ReturnsNotFound(t *testing.T) {
	svc := NewService(&mockTodoRepo{}, nil, ServiceConfig{})

	_, err := svc.UpdateCompletion(context.Background(), testUserID, testItemID, UpdateInput{IsCompleted: boolPtr(true)})
	assertAPIErrorCode(t, err, model.ErrCodeItemNotFound)
}

// --- Delete ---

func TestService_Delete_Success_ClearsBackReference(t *testing.T) {
	repo := &mockTodoRepo{
		deleteByIDAndUserFn: func(_ context.Context, id, userID string) (*model.TodoItem, error) {
			return &model.TodoItem{ID: id, UserID: userID, MovieID: testMovieID}, nil
		},
	}
	refs := &mockRefs{}
	svc := NewService(repo, refs, ServiceConfig{})

	if err := svc.Delete(context.Background(), testUserID, testItemID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	svc.Wait()

	calls := refs.snapshot()
	if len(calls) != 1 {
		t.Fatalf("SetMovieEntry calls = %d, want 1", len(calls))
	}
	if calls[0].movieID != testMovieID || calls[0].entryID != nil {
		t.Errorf("delete should write null for movie %s, got %+v", testMovieID, calls[0])
	}
}

// TestService_Delete_Idempotent は削除済みエントリへの繰り返し削除が毎回 ITEM_NOT_FOUND になることを検証する。
func TestService_Delete_Idempotent(t *testing.T) {
	deleted := false
	repo := &mockTodoRepo{
		deleteByIDAndUserFn: func(_ context.Context, id, userID string) (*model.TodoItem, error) {
			if deleted {
				return nil, nil
			}
			deleted = true
			return &model.TodoItem{ID: id, UserID: userID, MovieID: testMovieID}, nil
		},
	}
	refs := &mockRefs{}
	svc := NewService(repo, refs, ServiceConfig{})

	if err := svc.Delete(context.Background(), testUserID, testItemID); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	for i := 0; i < 2; i++ {
		err := svc.Delete(context.Background(), testUserID, testItemID)
		assertAPIErrorCode(t, err, model.ErrCodeItemNotFound)
	}
	svc.Wait()

	if n := len(refs.snapshot()); n != 1 {
		t.Errorf("back-reference writes = %d, want 1", n)
	}
}

func TestService_Delete_InvalidID(t *testing.T) {
	svc := NewService(&mockTodoRepo{}, nil, ServiceConfig{})

	err := svc.Delete(context.Background(), testUserID, "")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidItemID)
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(&mockTodoRepo{}, nil, ServiceConfig{})
	if svc.syncTimeout != DefaultSyncTimeout {
		t.Errorf("syncTimeout = %v, want %v", svc.syncTimeout, DefaultSyncTimeout)
	}
	if svc.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
}
