package session

import (
	"context"
	"errors"

	"smart-todos/internal/apierr"
	"smart-todos/internal/model"
	"smart-todos/internal/service"
)

// LocalBackend serves a session straight from the services in this process.
// Service errors leave it as *apierr.Failure values carrying the status and
// detail the HTTP API would have answered with.
type LocalBackend struct {
	auth     *service.AuthService
	todos    *service.TaskService
	subtasks *service.SubtaskService
}

func NewLocalBackend(authSvc *service.AuthService, taskSvc *service.TaskService, subtaskSvc *service.SubtaskService) *LocalBackend {
	return &LocalBackend{auth: authSvc, todos: taskSvc, subtasks: subtaskSvc}
}

func (b *LocalBackend) Login(ctx context.Context, email, password string) (*Credentials, error) {
	res, err := b.auth.Login(ctx, email, password)
	if err != nil {
		return nil, toFailure(err)
	}
	return &Credentials{Token: res.AccessToken, User: *res.User}, nil
}

func (b *LocalBackend) Signup(ctx context.Context, name, email, password string) (*Credentials, error) {
	res, err := b.auth.Signup(ctx, service.SignupInput{Name: name, Email: email, Password: password})
	if err != nil {
		return nil, toFailure(err)
	}
	return &Credentials{Token: res.AccessToken, User: *res.User}, nil
}

// IssueFor signs in a user that was already identified another way, such as
// a linked chat.
func (b *LocalBackend) IssueFor(user *model.User) (*Credentials, error) {
	res, err := b.auth.IssueFor(user)
	if err != nil {
		return nil, toFailure(err)
	}
	return &Credentials{Token: res.AccessToken, User: *res.User}, nil
}

func (b *LocalBackend) Me(ctx context.Context, token string) (*model.User, error) {
	user, err := b.auth.Authenticate(ctx, token)
	if err != nil {
		return nil, toFailure(err)
	}
	return user, nil
}

func (b *LocalBackend) ListTodos(ctx context.Context, token string) ([]model.Task, error) {
	user, err := b.Me(ctx, token)
	if err != nil {
		return nil, err
	}
	tasks, err := b.todos.Export(ctx, user)
	if err != nil {
		return nil, toFailure(err)
	}
	return tasks, nil
}

func (b *LocalBackend) CreateTodo(ctx context.Context, token string, input service.TodoInput) (*model.Task, error) {
	user, err := b.Me(ctx, token)
	if err != nil {
		return nil, err
	}
	task, err := b.todos.Create(ctx, user, input)
	if err != nil {
		return nil, toFailure(err)
	}
	return task, nil
}

func (b *LocalBackend) UpdateTodo(ctx context.Context, token string, id uint, patch service.TodoPatch) (*model.Task, error) {
	user, err := b.Me(ctx, token)
	if err != nil {
		return nil, err
	}
	task, err := b.todos.Update(ctx, user, id, patch)
	if err != nil {
		return nil, toFailure(err)
	}
	return task, nil
}

func (b *LocalBackend) DeleteTodo(ctx context.Context, token string, id uint) error {
	user, err := b.Me(ctx, token)
	if err != nil {
		return err
	}
	if err := b.todos.Delete(ctx, user, id); err != nil {
		return toFailure(err)
	}
	return nil
}

func (b *LocalBackend) GenerateSubtasks(ctx context.Context, apiKey, title, description string) (string, error) {
	out, err := b.subtasks.Generate(ctx, apiKey, title, description)
	if err != nil {
		return "", toFailure(err)
	}
	return out, nil
}

// toFailure keeps transport failures as they are and turns everything else
// into the structured failure the HTTP API would produce.
func toFailure(err error) error {
	var f *apierr.Failure
	if errors.As(err, &f) && f.Kind == apierr.KindTransport {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.Transport(err)
	}
	return apierr.Structured(service.HTTPStatus(err), service.PublicMessage(err))
}
