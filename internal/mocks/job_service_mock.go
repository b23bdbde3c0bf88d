package mocks

import (
	"context"

	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/stretchr/testify/mock"
)

type JobServiceMock struct {
	mock.Mock
}

func (m *JobServiceMock) CreateJob(ctx context.Context, req *dto.JobCreateDTO) (*dto.JobCreatedDTO, error) {
	args := m.Called(ctx, req)

	resp, _ := args.Get(0).(*dto.JobCreatedDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) GetJobByID(ctx context.Context, id uint) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, id)

	resp, _ := args.Get(0).(*dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) ListJobs(ctx context.Context, f dto.JobFilter) (*dto.JobListDTO, error) {
	args := m.Called(ctx, f)

	resp, _ := args.Get(0).(*dto.JobListDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) GetLogs(ctx context.Context, id uint) ([]dto.JobLogDTO, error) {
	args := m.Called(ctx, id)

	logs, _ := args.Get(0).([]dto.JobLogDTO)
	return logs, args.Error(1)
}

func (m *JobServiceMock) GetResult(ctx context.Context, id uint) (*dto.JobResultDTO, error) {
	args := m.Called(ctx, id)

	resp, _ := args.Get(0).(*dto.JobResultDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) CancelJob(ctx context.Context, id uint) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, id)

	resp, _ := args.Get(0).(*dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) DeleteJob(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *JobServiceMock) DeleteJobs(ctx context.Context, f dto.JobFilter) (*dto.BulkDeleteResponseDTO, error) {
	args := m.Called(ctx, f)

	resp, _ := args.Get(0).(*dto.BulkDeleteResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) GetArtifact(ctx context.Context, id uint) (*dto.ArtifactDownload, error) {
	args := m.Called(ctx, id)

	dl, _ := args.Get(0).(*dto.ArtifactDownload)
	return dl, args.Error(1)
}
