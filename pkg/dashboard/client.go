// Package dashboard implements the REST client for the cluster's monitoring API.
package dashboard

import (
	"net/http"

	"context"

	"github.com/rs/zerolog"

	"github.com/streamsql/workbench/pkg/errors"
	"github.com/streamsql/workbench/pkg/gateway"
	"github.com/streamsql/workbench/pkg/models"
)

// Client talks to the job manager's monitoring REST surface. It shares the
// gateway transport so monitoring failures are classified the same way as
// statement failures.
type Client struct {
	rest   *gateway.Client
	logger zerolog.Logger
}

// NewClient creates a dashboard client for the given job manager base URL.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		rest:   gateway.NewClient(baseURL, logger),
		logger: logger.With().Str("component", "dashboard").Logger(),
	}
}

// SetBaseURL re-points the client at a new job manager.
func (c *Client) SetBaseURL(baseURL string) {
	c.rest.SetBaseURL(baseURL)
}

// JobsOverview lists jobs with their state and timing. Older clusters do not
// serve /jobs/overview; those fall back to the bare /jobs listing.
func (c *Client) JobsOverview(ctx context.Context) ([]models.JobOverview, error) {
	var overview models.JobsOverview
	err := c.rest.Do(ctx, http.MethodGet, "/jobs/overview", nil, &overview)
	if err == nil {
		return overview.Jobs, nil
	}
	if !errors.IsCode(err, errors.CodeNotFound) {
		return nil, err
	}

	c.logger.Debug().Msg("jobs overview unavailable, falling back to /jobs")
	var list models.JobsList
	if err := c.rest.Do(ctx, http.MethodGet, "/jobs", nil, &list); err != nil {
		return nil, err
	}
	jobs := make([]models.JobOverview, len(list.Jobs))
	for i, entry := range list.Jobs {
		jobs[i] = models.JobOverview{JID: entry.ID, State: entry.Status}
	}
	return jobs, nil
}

// Job returns the detail of one job.
func (c *Client) Job(ctx context.Context, id string) (*models.JobDetail, error) {
	var detail models.JobDetail
	if err := c.rest.Do(ctx, http.MethodGet, "/jobs/"+id, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// JobPlan returns the execution plan of one job.
func (c *Client) JobPlan(ctx context.Context, id string) (*models.JobPlan, error) {
	var plan models.JobPlan
	if err := c.rest.Do(ctx, http.MethodGet, "/jobs/"+id+"/plan", nil, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// CancelJob asks the cluster to cancel a running job.
func (c *Client) CancelJob(ctx context.Context, id string) error {
	return c.rest.Do(ctx, http.MethodPatch, "/jobs/"+id+"?mode=cancel", nil, nil)
}

// TaskManagers lists the cluster's task manager processes.
func (c *Client) TaskManagers(ctx context.Context) ([]models.TaskManager, error) {
	var tms models.TaskManagers
	if err := c.rest.Do(ctx, http.MethodGet, "/taskmanagers", nil, &tms); err != nil {
		return nil, err
	}
	return tms.TaskManagers, nil
}

// Overview returns cluster-wide counters.
func (c *Client) Overview(ctx context.Context) (*models.ClusterOverview, error) {
	var overview models.ClusterOverview
	if err := c.rest.Do(ctx, http.MethodGet, "/overview", nil, &overview); err != nil {
		return nil, err
	}
	return &overview, nil
}
