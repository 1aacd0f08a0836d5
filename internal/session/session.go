// Package session holds the state of one signed-in client: the cached todo
// list, the selected tab, the search query, the last API error and the toast
// queue. All mutation goes through Session methods.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"smart-todos/internal/apierr"
	"smart-todos/internal/model"
	"smart-todos/internal/service"
	"smart-todos/internal/toast"
	"smart-todos/internal/view"
)

// ErrorLifetime is how long an API error stays visible after it is set.
const ErrorLifetime = 10 * time.Second

const (
	msgRequiredFields = "Please fill in all required fields"
	msgWelcomeBack    = "Welcome back!"
	msgAccountCreated = "Account created successfully!"
	msgTodoCreated    = "Todo created successfully!"
	msgTodoUpdated    = "Todo updated successfully!"
	msgTodoDeleted    = "Todo deleted successfully!"
)

// ErrUnknownTodo is returned when an operation names a todo that is not in
// the cached list.
var ErrUnknownTodo = errors.New("todo is not loaded")

// Credentials carry a signed-in identity.
type Credentials struct {
	Token string
	User  model.User
}

// Backend is everything a session needs from the todo API.
type Backend interface {
	Login(ctx context.Context, email, password string) (*Credentials, error)
	Signup(ctx context.Context, name, email, password string) (*Credentials, error)
	Me(ctx context.Context, token string) (*model.User, error)
	ListTodos(ctx context.Context, token string) ([]model.Task, error)
	CreateTodo(ctx context.Context, token string, input service.TodoInput) (*model.Task, error)
	UpdateTodo(ctx context.Context, token string, id uint, patch service.TodoPatch) (*model.Task, error)
	DeleteTodo(ctx context.Context, token string, id uint) error
	GenerateSubtasks(ctx context.Context, apiKey, title, description string) (string, error)
}

// State is a read-only snapshot of a session at one instant.
type State struct {
	User    *model.User
	Filter  view.Filter
	Query   string
	Visible []model.Task
	Counts  view.Counts
	Error   string
	Toasts  []toast.Notice
}

// SignedIn reports whether the snapshot has a user.
func (s State) SignedIn() bool {
	return s.User != nil
}

// Session is the explicit state container for one client. Operations are
// serialized; a slow backend call blocks other calls on the same session.
type Session struct {
	mu      sync.Mutex
	backend Backend
	toasts  *toast.Center
	now     func() time.Time

	token      string
	user       *model.User
	todos      []model.Task
	filter     view.Filter
	query      string
	apiError   string
	apiErrorAt time.Time
}

// New creates a signed-out session. A nil now uses time.Now.
func New(backend Backend, now func() time.Time) (*Session, error) {
	center, err := toast.NewCenter()
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Session{backend: backend, toasts: center, now: now, filter: view.FilterAll}, nil
}

// call runs fn as operation op. Failures are normalized, clear the session
// when they mean the credentials are no longer valid, and surface both as the
// API error and as an error toast. The returned error is a *apierr.Failure.
func (s *Session) call(op apierr.Operation, fn func() error) error {
	s.apiError = ""
	err := fn()
	if err == nil {
		return nil
	}

	f := apierr.Normalize(err)
	if f.IsAuth() {
		s.clear()
	}
	now := s.now()
	msg := apierr.FriendlyMessage(f, op)
	s.apiError = msg
	s.apiErrorAt = now
	s.toasts.Push(toast.KindError, msg, toast.ErrorDuration, now)
	return f
}

func (s *Session) clear() {
	s.token = ""
	s.user = nil
	s.todos = nil
}

func (s *Session) Login(ctx context.Context, email, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticate(ctx, apierr.OpLogin, msgWelcomeBack, func() (*Credentials, error) {
		if strings.TrimSpace(email) == "" || password == "" {
			return nil, nil
		}
		return s.backend.Login(ctx, email, password)
	})
}

func (s *Session) Signup(ctx context.Context, name, email, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticate(ctx, apierr.OpSignup, msgAccountCreated, func() (*Credentials, error) {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || password == "" {
			return nil, nil
		}
		return s.backend.Signup(ctx, name, email, password)
	})
}

// authenticate treats a nil result without error as missing form fields.
func (s *Session) authenticate(ctx context.Context, op apierr.Operation, welcome string, fn func() (*Credentials, error)) error {
	s.toasts.Clear()
	var creds *Credentials
	err := s.call(op, func() error {
		var err error
		creds, err = fn()
		return err
	})
	if err != nil {
		return err
	}
	if creds == nil {
		s.apiError = msgRequiredFields
		s.apiErrorAt = s.now()
		return apierr.PlainText(msgRequiredFields)
	}

	user := creds.User
	s.token = creds.Token
	s.user = &user
	s.toasts.Clear()
	s.toasts.Success(welcome, s.now())
	return s.fetch(ctx, true)
}

// Resume restores a session from a previously issued token and, like a fresh
// login, opens the overdue tab when something is overdue.
func (s *Session) Resume(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resume(ctx, token, true)
}

// Renew swaps in a newly issued token for the same account. The selected tab
// and search query are kept.
func (s *Session) Renew(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resume(ctx, token, false)
}

func (s *Session) resume(ctx context.Context, token string, selectOverdue bool) error {
	var user *model.User
	err := s.call(apierr.OpFetchTodos, func() error {
		var err error
		user, err = s.backend.Me(ctx, token)
		return err
	})
	if err != nil {
		return err
	}
	s.token = token
	s.user = user
	return s.fetch(ctx, selectOverdue)
}

// Logout forgets the user, the todos and any pending error.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
	s.apiError = ""
	s.filter = view.FilterAll
	s.query = ""
}

// Fetch reloads the todo list. The selected tab is kept.
func (s *Session) Fetch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetch(ctx, false)
}

// fetch reloads the todos. With selectOverdue it switches to the overdue tab
// when anything is overdue, which only happens when a user first signs in.
func (s *Session) fetch(ctx context.Context, selectOverdue bool) error {
	token, err := s.requireToken(apierr.OpFetchTodos)
	if err != nil {
		return err
	}
	var todos []model.Task
	err = s.call(apierr.OpFetchTodos, func() error {
		var err error
		todos, err = s.backend.ListTodos(ctx, token)
		return err
	})
	if err != nil {
		return err
	}
	s.todos = todos
	if selectOverdue && s.user != nil && view.CountsByFilter(todos, s.now()).Overdue > 0 {
		s.filter = view.FilterOverdue
	}
	return nil
}

func (s *Session) Create(ctx context.Context, input service.TodoInput) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.requireToken(apierr.OpCreateTodo)
	if err != nil {
		return nil, err
	}
	var task *model.Task
	err = s.call(apierr.OpCreateTodo, func() error {
		var err error
		task, err = s.backend.CreateTodo(ctx, token, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.todos = append(s.todos, *task)
	s.toasts.Success(msgTodoCreated, s.now())
	return task, nil
}

func (s *Session) Update(ctx context.Context, id uint, patch service.TodoPatch) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.update(ctx, apierr.OpUpdateTodo, id, patch)
	if err != nil {
		return nil, err
	}
	s.toasts.Success(msgTodoUpdated, s.now())
	return task, nil
}

func (s *Session) ToggleComplete(ctx context.Context, id uint) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.cached(apierr.OpToggleComplete, id)
	if err != nil {
		return nil, err
	}
	completed := !cur.Completed
	return s.update(ctx, apierr.OpToggleComplete, id, service.TodoPatch{Completed: &completed})
}

func (s *Session) ToggleStarred(ctx context.Context, id uint) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.cached(apierr.OpToggleStarred, id)
	if err != nil {
		return nil, err
	}
	starred := !cur.Starred
	return s.update(ctx, apierr.OpToggleStarred, id, service.TodoPatch{Starred: &starred})
}

func (s *Session) Archive(ctx context.Context, id uint) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cached(apierr.OpArchiveTodo, id); err != nil {
		return nil, err
	}
	archived := true
	return s.update(ctx, apierr.OpArchiveTodo, id, service.TodoPatch{Archived: &archived})
}

func (s *Session) Delete(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.requireToken(apierr.OpDeleteTodo)
	if err != nil {
		return err
	}
	err = s.call(apierr.OpDeleteTodo, func() error {
		return s.backend.DeleteTodo(ctx, token, id)
	})
	if err != nil {
		return err
	}
	kept := s.todos[:0]
	for _, t := range s.todos {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	s.todos = kept
	s.toasts.Success(msgTodoDeleted, s.now())
	return nil
}

// GenerateSubtasks asks the AI provider to split a todo. It does not need a
// signed-in user, only the provider key.
func (s *Session) GenerateSubtasks(ctx context.Context, apiKey, title, description string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out string
	err := s.call(apierr.OpGenerateSubtasks, func() error {
		var err error
		out, err = s.backend.GenerateSubtasks(ctx, apiKey, title, description)
		return err
	})
	return out, err
}

func (s *Session) update(ctx context.Context, op apierr.Operation, id uint, patch service.TodoPatch) (*model.Task, error) {
	token, err := s.requireToken(op)
	if err != nil {
		return nil, err
	}
	var task *model.Task
	err = s.call(op, func() error {
		var err error
		task, err = s.backend.UpdateTodo(ctx, token, id, patch)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.replace(*task)
	return task, nil
}

func (s *Session) replace(task model.Task) {
	for i := range s.todos {
		if s.todos[i].ID == task.ID {
			s.todos[i] = task
			return
		}
	}
	s.todos = append(s.todos, task)
}

func (s *Session) cached(op apierr.Operation, id uint) (model.Task, error) {
	for _, t := range s.todos {
		if t.ID == id {
			return t, nil
		}
	}
	return model.Task{}, s.call(op, func() error { return ErrUnknownTodo })
}

func (s *Session) requireToken(op apierr.Operation) (string, error) {
	if s.token == "" {
		return "", s.call(op, func() error { return apierr.HTTPStatus(401) })
	}
	return s.token, nil
}

// SetFilter switches the visible tab.
func (s *Session) SetFilter(f view.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
}

func (s *Session) SetSearch(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = query
}

// DismissError hides the API error and any error toasts.
func (s *Session) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiError = ""
	for _, n := range s.toasts.Active(s.now()) {
		if n.Kind == toast.KindError {
			s.toasts.Dismiss(n.ID)
		}
	}
}

// DismissToast removes one toast by id.
func (s *Session) DismissToast(id string) bool {
	return s.toasts.Dismiss(id)
}

// DrainToasts returns the toasts live at now and removes them, for front ends
// that deliver each notice once.
func (s *Session) DrainToasts(now time.Time) []toast.Notice {
	return s.toasts.Drain(now)
}

// Sweep drops expired toasts and an expired API error.
func (s *Session) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.apiError != "" && !now.Before(s.apiErrorAt.Add(ErrorLifetime)) {
		s.apiError = ""
	}
	return s.toasts.Sweep(now)
}

// Token returns the current access token, or "".
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Snapshot derives the visible state at now.
func (s *Session) Snapshot(now time.Time) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Filter:  s.filter,
		Query:   s.query,
		Visible: view.SearchFilter(view.FilterBy(s.todos, s.filter, now), s.query),
		Counts:  view.CountsByFilter(s.todos, now),
		Toasts:  s.toasts.Active(now),
	}
	if s.user != nil {
		user := *s.user
		st.User = &user
	}
	if s.apiError != "" && now.Before(s.apiErrorAt.Add(ErrorLifetime)) {
		st.Error = s.apiError
	}
	return st
}
