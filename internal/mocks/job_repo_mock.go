package mocks

import (
	"context"

	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/stretchr/testify/mock"
)

type JobRepoMock struct {
	mock.Mock
}

func (m *JobRepoMock) Create(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *JobRepoMock) Get(ctx context.Context, id uint) (*models.Job, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) List(ctx context.Context, f dto.JobFilter) ([]models.Job, int64, error) {
	args := m.Called(ctx, f)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Get(1).(int64), args.Error(2)
}

func (m *JobRepoMock) Logs(ctx context.Context, id uint) ([]models.JobLog, error) {
	args := m.Called(ctx, id)

	logs, _ := args.Get(0).([]models.JobLog)
	return logs, args.Error(1)
}

func (m *JobRepoMock) Result(ctx context.Context, id uint) (models.ResultLinkage, error) {
	args := m.Called(ctx, id)

	res, _ := args.Get(0).(models.ResultLinkage)
	return res, args.Error(1)
}

func (m *JobRepoMock) Cancel(ctx context.Context, id uint) (*models.Job, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) Delete(ctx context.Context, id uint) (*models.Artifact, error) {
	args := m.Called(ctx, id)

	a, _ := args.Get(0).(*models.Artifact)
	return a, args.Error(1)
}

func (m *JobRepoMock) DeleteAllTerminal(ctx context.Context, f dto.JobFilter) (int64, []models.Artifact, error) {
	args := m.Called(ctx, f)

	artifacts, _ := args.Get(1).([]models.Artifact)
	return args.Get(0).(int64), artifacts, args.Error(2)
}
