package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/promptforge/promptforge-api/internal/dto"
	"github.com/promptforge/promptforge-api/internal/models"
)

type stubPromptRepo struct {
	mu      sync.Mutex
	nextID  uint
	prompts map[uint]models.Prompt

	listOffset int
	listLimit  int
}

func newStubPromptRepo() *stubPromptRepo {
	return &stubPromptRepo{prompts: make(map[uint]models.Prompt)}
}

func (r *stubPromptRepo) Create(ctx context.Context, prompt *models.Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	prompt.ID = r.nextID
	r.prompts[prompt.ID] = *prompt
	return nil
}

func (r *stubPromptRepo) Update(ctx context.Context, prompt *models.Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[prompt.ID] = *prompt
	return nil
}

func (r *stubPromptRepo) Delete(ctx context.Context, id, userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prompt, ok := r.prompts[id]
	if !ok || prompt.UserID != userID {
		return gorm.ErrRecordNotFound
	}
	delete(r.prompts, id)
	return nil
}

func (r *stubPromptRepo) GetByID(ctx context.Context, id, userID uint) (models.Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prompt, ok := r.prompts[id]
	if !ok || prompt.UserID != userID {
		return models.Prompt{}, gorm.ErrRecordNotFound
	}
	return prompt, nil
}

func (r *stubPromptRepo) List(ctx context.Context, userID uint, offset, limit int) ([]models.Prompt, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listOffset = offset
	r.listLimit = limit

	owned := make([]models.Prompt, 0, len(r.prompts))
	for _, prompt := range r.prompts {
		if prompt.UserID == userID {
			owned = append(owned, prompt)
		}
	}
	return owned, int64(len(owned)), nil
}

func newPromptServiceForTest(repo *stubPromptRepo) PromptService {
	return NewPromptService(repo, validator.New(), zerolog.Nop())
}

func TestPromptCreateSanitizesDescription(t *testing.T) {
	svc := newPromptServiceForTest(newStubPromptRepo())

	created, err := svc.Create(context.Background(), 1, dto.PromptCreateRequest{
		Name:        "  Summarizer  ",
		Description: `A <script>alert("x")</script>summary <b>helper</b>`,
		Template:    "Summarize: {{text}}",
	})
	require.NoError(t, err)
	require.Equal(t, "Summarizer", created.Name)
	require.Equal(t, "A summary helper", created.Description)
	require.Equal(t, "Summarize: {{text}}", created.Template)
	require.NotZero(t, created.ID)
}

func TestPromptCreateValidation(t *testing.T) {
	svc := newPromptServiceForTest(newStubPromptRepo())

	_, err := svc.Create(context.Background(), 1, dto.PromptCreateRequest{Name: "no template"})
	var validationErrs validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrs))
}

func TestPromptUpdateEnforcesOwnership(t *testing.T) {
	repo := newStubPromptRepo()
	svc := newPromptServiceForTest(repo)

	created, err := svc.Create(context.Background(), 1, dto.PromptCreateRequest{
		Name: "mine", Template: "t",
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), 2, created.ID, dto.PromptUpdateRequest{
		Name: "stolen", Template: "t",
	})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	updated, err := svc.Update(context.Background(), 1, created.ID, dto.PromptUpdateRequest{
		Name: "renamed", Template: "t2",
	})
	require.NoError(t, err)
	require.Equal(t, "renamed", updated.Name)
	require.Equal(t, "t2", updated.Template)
}

func TestPromptListPagination(t *testing.T) {
	repo := newStubPromptRepo()
	svc := newPromptServiceForTest(repo)

	_, err := svc.List(context.Background(), 1, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 0, repo.listOffset)
	require.Equal(t, 20, repo.listLimit)

	_, err = svc.List(context.Background(), 1, 3, 500)
	require.NoError(t, err)
	require.Equal(t, 200, repo.listOffset)
	require.Equal(t, 100, repo.listLimit)
}

func TestPromptRenderPreview(t *testing.T) {
	svc := newPromptServiceForTest(newStubPromptRepo())

	rendered := svc.Render("Hello {{name}}", map[string]interface{}{"name": "world"})
	require.Equal(t, "Hello world", rendered)
}
