package export

import (
	"context"
	"fmt"
	"time"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetProjectInfo(ctx context.Context, projectID int64) (ProjectInfo, error)
	ListMemberNames(ctx context.Context, projectID int64) ([]string, error)
	ListReportTasks(ctx context.Context, projectID int64) ([]ReportTask, error)
	ListRecentMessages(ctx context.Context, projectID int64, limit int) ([]ReportMessage, error)
}

// ProjectInfo holds basic project metadata
type ProjectInfo struct {
	ID          int64
	Name        string
	Subtitle    string
	Description string
}

// Service provides project report export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// recentMessageLimit bounds how much discussion ends up in a report.
const recentMessageLimit = 20

// Export generates a PDF status report for a project.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	info, err := s.store.GetProjectInfo(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	members, err := s.store.ListMemberNames(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	tasks, err := s.store.ListReportTasks(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	messages, err := s.store.ListRecentMessages(ctx, req.ProjectID, recentMessageLimit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	open, done := 0, 0
	for _, t := range tasks {
		if t.Done {
			done++
		} else {
			open++
		}
	}

	data := TemplateData{
		Name:        info.Name,
		Subtitle:    info.Subtitle,
		Description: info.Description,
		GeneratedAt: time.Now(),
		Members:     members,
		Tasks:       tasks,
		Messages:    messages,
		OpenCount:   open,
		DoneCount:   done,
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return exportPDF(html, info.Name)
}
