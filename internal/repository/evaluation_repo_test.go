package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/promptforge/promptforge-api/internal/models"
)

func setupEvaluationTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return setupTestDB(t,
		&models.Evaluation{},
		&models.TestCase{},
		&models.EvaluationCriterion{},
		&models.EvaluationRun{},
		&models.TestCaseResult{},
		&models.Attachment{},
		&models.Prompt{},
		&models.Provider{},
		&models.Model{},
	)
}

func TestEvaluationRepositoryGetByIDPreloadsChildrenInOrder(t *testing.T) {
	db := setupEvaluationTestDB(t)
	repo := NewEvaluationRepository(db)

	evaluation := models.Evaluation{UserID: 1, Name: "ordering"}
	require.NoError(t, repo.Create(context.Background(), &evaluation))

	for _, order := range []int{2, 0, 1} {
		testCase := models.TestCase{EvaluationID: evaluation.ID, Input: "in", OrderIndex: order}
		require.NoError(t, repo.CreateTestCase(context.Background(), &testCase))
	}
	criterion := models.EvaluationCriterion{EvaluationID: evaluation.ID, Name: "Accuracy", Weight: 1, Enabled: true}
	require.NoError(t, repo.CreateCriterion(context.Background(), &criterion))

	found, err := repo.GetByID(context.Background(), evaluation.ID, 1)
	require.NoError(t, err)
	require.Len(t, found.TestCases, 3)
	require.Equal(t, 0, found.TestCases[0].OrderIndex)
	require.Equal(t, 1, found.TestCases[1].OrderIndex)
	require.Equal(t, 2, found.TestCases[2].OrderIndex)
	require.Len(t, found.Criteria, 1)

	_, err = repo.GetByID(context.Background(), evaluation.ID, 2)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestEvaluationRepositoryNextOrderIndex(t *testing.T) {
	db := setupEvaluationTestDB(t)
	repo := NewEvaluationRepository(db)

	evaluation := models.Evaluation{UserID: 1, Name: "ordering"}
	require.NoError(t, repo.Create(context.Background(), &evaluation))

	next, err := repo.NextOrderIndex(context.Background(), evaluation.ID)
	require.NoError(t, err)
	require.Equal(t, 0, next)

	testCase := models.TestCase{EvaluationID: evaluation.ID, Input: "in", OrderIndex: 5}
	require.NoError(t, repo.CreateTestCase(context.Background(), &testCase))

	next, err = repo.NextOrderIndex(context.Background(), evaluation.ID)
	require.NoError(t, err)
	require.Equal(t, 6, next)
}

func TestEvaluationRepositoryDeleteScopedToOwner(t *testing.T) {
	db := setupEvaluationTestDB(t)
	repo := NewEvaluationRepository(db)

	evaluation := models.Evaluation{UserID: 1, Name: "mine"}
	require.NoError(t, repo.Create(context.Background(), &evaluation))

	require.ErrorIs(t, repo.Delete(context.Background(), evaluation.ID, 2), gorm.ErrRecordNotFound)
	require.NoError(t, repo.Delete(context.Background(), evaluation.ID, 1))
	require.ErrorIs(t, repo.Delete(context.Background(), evaluation.ID, 1), gorm.ErrRecordNotFound)
}

func TestEvaluationRepositoryDeleteTestCaseScopedToEvaluation(t *testing.T) {
	db := setupEvaluationTestDB(t)
	repo := NewEvaluationRepository(db)

	evaluation := models.Evaluation{UserID: 1, Name: "a"}
	require.NoError(t, repo.Create(context.Background(), &evaluation))
	other := models.Evaluation{UserID: 1, Name: "b"}
	require.NoError(t, repo.Create(context.Background(), &other))

	testCase := models.TestCase{EvaluationID: evaluation.ID, Input: "in"}
	require.NoError(t, repo.CreateTestCase(context.Background(), &testCase))

	require.ErrorIs(t, repo.DeleteTestCase(context.Background(), testCase.ID, other.ID), gorm.ErrRecordNotFound)
	require.NoError(t, repo.DeleteTestCase(context.Background(), testCase.ID, evaluation.ID))
}

func TestEvaluationRepositoryListPaginates(t *testing.T) {
	db := setupEvaluationTestDB(t)
	repo := NewEvaluationRepository(db)

	for i := 0; i < 5; i++ {
		evaluation := models.Evaluation{UserID: 1, Name: "eval"}
		require.NoError(t, repo.Create(context.Background(), &evaluation))
	}
	foreign := models.Evaluation{UserID: 2, Name: "not mine"}
	require.NoError(t, repo.Create(context.Background(), &foreign))

	page, total, err := repo.List(context.Background(), 1, 0, 3)
	require.NoError(t, err)
	require.Equal(t, int64(5), total)
	require.Len(t, page, 3)

	rest, total, err := repo.List(context.Background(), 1, 3, 3)
	require.NoError(t, err)
	require.Equal(t, int64(5), total)
	require.Len(t, rest, 2)
}

func TestEvaluationRepositoryListTestCasesIncludesAttachments(t *testing.T) {
	db := setupEvaluationTestDB(t)
	repo := NewEvaluationRepository(db)

	evaluation := models.Evaluation{UserID: 1, Name: "with files"}
	require.NoError(t, repo.Create(context.Background(), &evaluation))

	attachment := models.Attachment{UserID: 1, FileName: "doc.png", MimeType: "image/png", URL: "https://cdn.example.com/doc.png"}
	require.NoError(t, db.Create(&attachment).Error)

	testCase := models.TestCase{
		EvaluationID: evaluation.ID,
		Input:        "read this",
		Attachments:  []models.Attachment{attachment},
	}
	require.NoError(t, repo.CreateTestCase(context.Background(), &testCase))

	testCases, err := repo.ListTestCases(context.Background(), evaluation.ID)
	require.NoError(t, err)
	require.Len(t, testCases, 1)
	require.Len(t, testCases[0].Attachments, 1)
	require.Equal(t, "doc.png", testCases[0].Attachments[0].FileName)
}
