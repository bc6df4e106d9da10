package service

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/edusupport/internal/domain"
	"github.com/spec-kit/edusupport/internal/events"
	apperrors "github.com/spec-kit/edusupport/pkg/util"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*domain.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func TestTicketCreate_StudentsOnly(t *testing.T) {
	tickets := newFakeTicketRepo()
	student := &domain.User{ID: "student-1", Role: domain.RoleStudent}
	teacher := &domain.User{ID: "teacher-1", Role: domain.RoleTeacher}
	svc := NewTicketService(tickets, newFakeUserRepo(student, teacher), events.NewInMemoryDispatcher())
	ctx := context.Background()

	_, err := svc.Create(ctx, teacher, TicketCreateInput{Title: "t", Description: "d"})
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	ticket, err := svc.Create(ctx, student, TicketCreateInput{Title: "Need help", Description: "Stuck on limits"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, student.ID, ticket.StudentID)
	assert.Equal(t, domain.CategoryOther, ticket.Category)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
}

func TestTicketCreate_Validation(t *testing.T) {
	student := &domain.User{ID: "student-1", Role: domain.RoleStudent}
	svc := NewTicketService(newFakeTicketRepo(), newFakeUserRepo(student), events.NewInMemoryDispatcher())

	_, err := svc.Create(context.Background(), student, TicketCreateInput{Title: "  ", Description: ""})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestTicketGet_AccessControl(t *testing.T) {
	tickets := newFakeTicketRepo()
	student := &domain.User{ID: "student-1", Role: domain.RoleStudent}
	teacherID := "teacher-1"
	teacher := &domain.User{ID: teacherID, Role: domain.RoleTeacher}
	admin := &domain.User{ID: "admin-1", Role: domain.RoleAdmin}
	outsider := &domain.User{ID: "student-2", Role: domain.RoleStudent}

	ticket := &domain.Ticket{ID: "ticket-1", StudentID: student.ID, TeacherID: &teacherID, Status: domain.TicketStatusOpen}
	require.NoError(t, tickets.Create(context.Background(), ticket))

	svc := NewTicketService(tickets, newFakeUserRepo(student, teacher, admin, outsider), events.NewInMemoryDispatcher())
	ctx := context.Background()

	for _, actor := range []*domain.User{student, teacher, admin} {
		_, err := svc.Get(ctx, actor, ticket.ID)
		assert.NoError(t, err, "%s should see the ticket", actor.ID)
	}

	_, err := svc.Get(ctx, outsider, ticket.ID)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	_, err = svc.Get(ctx, admin, "missing")
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestTicketAssign(t *testing.T) {
	tickets := newFakeTicketRepo()
	student := &domain.User{ID: "student-1", Role: domain.RoleStudent}
	teacher := &domain.User{ID: "teacher-1", Role: domain.RoleTeacher}
	admin := &domain.User{ID: "admin-1", Role: domain.RoleAdmin}

	ticket := &domain.Ticket{ID: "ticket-1", StudentID: student.ID, Status: domain.TicketStatusOpen}
	require.NoError(t, tickets.Create(context.Background(), ticket))

	svc := NewTicketService(tickets, newFakeUserRepo(student, teacher, admin), events.NewInMemoryDispatcher())
	ctx := context.Background()

	_, err := svc.Assign(ctx, teacher, ticket.ID, teacher.ID)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	_, err = svc.Assign(ctx, admin, ticket.ID, student.ID)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"), "assignee must be a teacher")

	assigned, err := svc.Assign(ctx, admin, ticket.ID, teacher.ID)
	require.NoError(t, err)
	require.NotNil(t, assigned.TeacherID)
	assert.Equal(t, teacher.ID, *assigned.TeacherID)
}
